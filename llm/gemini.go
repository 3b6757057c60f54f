package llm

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, err
	}

	return &Gemini{
		client: client,
		model:  cfg.Model,
	}, nil
}

func (c *Gemini) Name() string {
	return string(ProviderGemini)
}

// Close is a no-op, genai clients hold no resources of their own.
func (c *Gemini) Close() error {
	return nil
}

func (c *Gemini) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartTypeImageURL:
				parts = append(parts, genai.NewPartFromBytes(part.Image, part.MimeType))

			default:
				parts = append(parts, genai.NewPartFromText(part.Text))
			}
		}

		switch msg.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromParts(parts, genai.RoleUser)

		case RoleAssistant:
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		default:
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		apiErr := &APIError{
			Provider: c.Name(),
			Err:      err,
		}

		var sdkErr genai.APIError
		if errors.As(err, &sdkErr) {
			apiErr.StatusCode = sdkErr.Code
			apiErr.Message = sdkErr.Message
		}

		return nil, apiErr
	}

	var (
		text   strings.Builder
		reason string
	)

	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}

			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}

			if text.Len() > 0 {
				reason = string(candidate.FinishReason)
				break
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text.String(),
		Model:        c.model,
		FinishReason: reason,
	}, nil
}
