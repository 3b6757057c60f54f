package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

type Anthropic struct {
	messages anthropic.MessageService
	model    string
}

func NewAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // retries belong to RetryMiddleware
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	client := anthropic.NewClient(opts...)

	return &Anthropic{
		messages: client.Messages,
		model:    cfg.Model,
	}
}

func (c *Anthropic) Name() string {
	return string(ProviderAnthropic)
}

func (c *Anthropic) Close() error {
	return nil
}

func (c *Anthropic) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	var (
		system   []anthropic.TextBlockParam
		messages []anthropic.MessageParam
	)

	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			for _, part := range msg.Parts {
				system = append(system, anthropic.TextBlockParam{Text: part.Text})
			}
			continue
		}

		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case PartTypeImageURL:
				data := base64.StdEncoding.EncodeToString(part.Image)
				blocks = append(blocks, anthropic.NewImageBlockBase64(part.MimeType, data))

			default:
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		}

		if msg.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if len(system) > 0 {
		params.System = system
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		apiErr := &APIError{
			Provider: c.Name(),
			Err:      err,
		}

		var sdkErr *anthropic.Error
		if errors.As(err, &sdkErr) {
			apiErr.StatusCode = sdkErr.StatusCode
		}

		return nil, apiErr
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
	}, nil
}
