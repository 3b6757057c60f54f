package vector

import (
	"context"
	"errors"
)

var (
	ErrCollectionNotFound      = errors.New("collection not found")
	ErrCollectionAlreadyExists = errors.New("collection already exists")
)

type Config struct {
	Persistent bool   `yaml:"persistent"`
	Path       string `yaml:"path"`
	Compress   bool   `yaml:"compress"`
}

type VectorDB interface {
	Collection(name string) (Collection, error)
	CreateCollection(name string) (Collection, error)
	DeleteCollection(name string) error
	HasCollection(name string) bool
	ListCollections() []string
}

type Collection interface {
	Name() string
	Count() int
	AddDocuments(ctx context.Context, docs []Document) error
	QueryEmbedding(ctx context.Context, embedding []float32, k int) ([]Document, error)
}

type Document struct {
	ID         string            `json:"id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Similarity float32           `json:"similarity,omitempty"`
}
