// Package llm talks to hosted chat models that accept text and images in a
// single request.
package llm

import (
	"context"
	"encoding/base64"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartTypeText     PartType = "text"
	PartTypeImageURL PartType = "image_url"
)

// Part is one typed piece of message content.
type Part struct {
	Type     PartType
	Text     string
	Image    []byte
	MimeType string
}

func TextPart(text string) Part {
	return Part{
		Type: PartTypeText,
		Text: text,
	}
}

func ImagePart(image []byte, mimeType string) Part {
	if mimeType == "" {
		mimeType = "image/png"
	}

	return Part{
		Type:     PartTypeImageURL,
		Image:    image,
		MimeType: mimeType,
	}
}

// DataURI returns the inline data reference for an image part.
func (p Part) DataURI() string {
	return "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Image)
}

type Message struct {
	Role  Role
	Parts []Part
}

type Request struct {
	Messages  []Message
	MaxTokens int
}

type Response struct {
	Text         string
	Model        string
	FinishReason string
}

type Provider interface {
	Name() string
	Chat(ctx context.Context, req Request) (*Response, error)
	Close() error
}

type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
	ProviderOllama    ProviderType = "ollama"
)

type Config struct {
	Provider          ProviderType  `yaml:"provider" validate:"required,oneof=openai anthropic gemini ollama"`
	Model             string        `yaml:"model" validate:"required"`
	BaseURL           string        `yaml:"baseURL" validate:"omitempty,url"`
	APIKey            string        `yaml:"-"`
	MaxTokens         int           `yaml:"maxTokens" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries" validate:"gte=0"`
	RetryBackoff      time.Duration `yaml:"retryBackoff"`
	MaxConcurrency    int64         `yaml:"maxConcurrency" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOpenAI,
		Model:          "llama-3.2-90b-vision-preview",
		BaseURL:        "https://api.groq.com/openai/v1",
		MaxTokens:      300,
		Timeout:        60 * time.Second,
		Retries:        1,
		RetryBackoff:   time.Second,
		MaxConcurrency: 4,
	}
}
