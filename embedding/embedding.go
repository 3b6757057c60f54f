// Package embedding provides visual document embeddings for page images and
// the text queries searched against them.
package embedding

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmbedding          = errors.New("embedding failed")
	ErrDimensionsMismatch = errors.New("embedding count does not match input count")
)

// Embedder maps page images and queries into one vector space.
type Embedder interface {
	// EmbedImages returns one vector per image, in input order.
	EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error)

	// EmbedQuery returns the vector for a natural-language query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Model returns the name of the pretrained model.
	Model() string

	// Close releases whatever the embedder acquired.
	Close() error
}

type Config struct {
	Model     string        `yaml:"model" validate:"required"`
	BaseURL   string        `yaml:"baseURL" validate:"required,url"`
	APIKey    string        `yaml:"-"`
	BatchSize int           `yaml:"batchSize" validate:"gte=0"`
	Retries   int           `yaml:"retries" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Model:     "vidore/colpali-v1.2",
		BaseURL:   "http://localhost:8000/v1",
		BatchSize: 4,
		Timeout:   2 * time.Minute,
	}
}
