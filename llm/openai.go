package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"

	oaiopt "github.com/openai/openai-go/option"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI speaks the chat completions protocol shared by OpenAI and the
// providers that mirror it (Groq, Together, vLLM, ...).
type OpenAI struct {
	completions openai.ChatCompletionService
	model       string
}

func NewOpenAI(cfg Config) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	opts := []oaiopt.RequestOption{
		oaiopt.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		oaiopt.WithMaxRetries(0), // retries belong to RetryMiddleware
	}

	if cfg.APIKey != "" {
		opts = append(opts, oaiopt.WithAPIKey(cfg.APIKey))
	}

	client := openai.NewClient(opts...)

	return &OpenAI{
		completions: client.Chat.Completions,
		model:       cfg.Model,
	}
}

func (c *OpenAI) Name() string {
	return string(ProviderOpenAI)
}

func (c *OpenAI) Close() error {
	return nil
}

func (c *OpenAI) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(joinText(msg.Parts)))

		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(joinText(msg.Parts)))

		default:
			parts := make([]openai.ChatCompletionContentPartUnionParam, len(msg.Parts))
			for i, part := range msg.Parts {
				switch part.Type {
				case PartTypeImageURL:
					parts[i] = openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.DataURI(),
					})

				default:
					parts[i] = openai.TextContentPart(part.Text)
				}
			}

			messages = append(messages, openai.UserMessage(parts))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		apiErr := &APIError{
			Provider: c.Name(),
			Err:      err,
		}

		var sdkErr *openai.Error
		if errors.As(err, &sdkErr) {
			apiErr.StatusCode = sdkErr.StatusCode
			apiErr.Message = sdkErr.Message
		}

		return nil, apiErr
	}

	if len(completion.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := completion.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         choice.Message.Content,
		Model:        completion.Model,
		FinishReason: string(choice.FinishReason),
	}, nil
}

func joinText(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == PartTypeText {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "\n")
}
