package llm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaBaseURL = "http://localhost:11434"

// Ollama runs a local vision model (llava, llama3.2-vision, ...).
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(cfg Config) (*Ollama, error) {
	rawURL := cfg.BaseURL
	if rawURL == "" {
		rawURL = DefaultOllamaBaseURL
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	return &Ollama{
		client: api.NewClient(base, &http.Client{}),
		model:  cfg.Model,
	}, nil
}

func (c *Ollama) Name() string {
	return string(ProviderOllama)
}

func (c *Ollama) Close() error {
	return nil
}

func (c *Ollama) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	messages := make([]api.Message, len(req.Messages))
	for i, msg := range req.Messages {
		var (
			texts  []string
			images []api.ImageData
		)

		for _, part := range msg.Parts {
			switch part.Type {
			case PartTypeImageURL:
				images = append(images, api.ImageData(part.Image))

			default:
				texts = append(texts, part.Text)
			}
		}

		messages[i] = api.Message{
			Role:    string(msg.Role),
			Content: strings.Join(texts, "\n"),
			Images:  images,
		}
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}

	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{
			"num_predict": req.MaxTokens,
		}
	}

	var (
		text  strings.Builder
		model string
		done  string
	)

	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		model = resp.Model
		done = resp.DoneReason
		return nil
	})

	if err != nil {
		apiErr := &APIError{
			Provider: c.Name(),
			Err:      err,
		}

		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			apiErr.StatusCode = statusErr.StatusCode
			apiErr.Message = statusErr.ErrorMessage
		}

		return nil, apiErr
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text.String(),
		Model:        model,
		FinishReason: done,
	}, nil
}
