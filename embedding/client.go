package embedding

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	oaiopt "github.com/openai/openai-go/option"
)

// Client calls an embeddings endpoint that serves a visual retrieval model.
// Images travel as data URIs in the input list, queries as plain strings.
type Client struct {
	embeddings openai.EmbeddingService
	model      string
	batchSize  int
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	apiKey    string
	batchSize int
	retries   int
	request   []oaiopt.RequestOption
}

func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) {
		o.apiKey = key
	}
}

func WithBatchSize(n int) ClientOption {
	return func(o *clientOptions) {
		o.batchSize = n
	}
}

func WithRetries(n int) ClientOption {
	return func(o *clientOptions) {
		o.retries = n
	}
}

// WithRequestOptions passes extra options to every embeddings call.
func WithRequestOptions(opts ...oaiopt.RequestOption) ClientOption {
	return func(o *clientOptions) {
		o.request = append(o.request, opts...)
	}
}

// FromPretrained binds a client to a pretrained model served at baseURL.
func FromPretrained(model string, baseURL string, opts ...ClientOption) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrEmbedding)
	}

	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrEmbedding)
	}

	o := &clientOptions{batchSize: 4}
	for _, opt := range opts {
		opt(o)
	}

	if o.batchSize <= 0 {
		o.batchSize = 1
	}

	requestOpts := []oaiopt.RequestOption{
		oaiopt.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		oaiopt.WithMaxRetries(max(o.retries, 0)),
	}

	if o.apiKey != "" {
		requestOpts = append(requestOpts, oaiopt.WithAPIKey(o.apiKey))
	}

	requestOpts = append(requestOpts, o.request...)

	client := openai.NewClient(requestOpts...)

	return &Client{
		embeddings: client.Embeddings,
		model:      model,
		batchSize:  o.batchSize,
	}, nil
}

func NewClient(cfg Config) (*Client, error) {
	opts := []ClientOption{
		WithAPIKey(cfg.APIKey),
		WithBatchSize(cfg.BatchSize),
		WithRetries(cfg.Retries),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, WithRequestOptions(oaiopt.WithRequestTimeout(cfg.Timeout)))
	}

	return FromPretrained(cfg.Model, cfg.BaseURL, opts...)
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	vectors := make([][]float32, 0, len(images))

	for start := 0; start < len(images); start += c.batchSize {
		end := min(start+c.batchSize, len(images))

		inputs := make([]string, 0, end-start)
		for _, image := range images[start:end] {
			inputs = append(inputs, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(image))
		}

		batch, err := c.embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embedding images %d-%d: %w", start, end-1, err)
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := c.embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})

	if err != nil {
		var sdkErr *openai.Error
		if errors.As(err, &sdkErr) {
			return nil, fmt.Errorf("%w: status %d: %w", ErrEmbedding, sdkErr.StatusCode, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionsMismatch, len(resp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEmbedding, d.Index)
		}

		vector := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vector[i] = float32(v)
		}

		vectors[d.Index] = vector
	}

	return vectors, nil
}
