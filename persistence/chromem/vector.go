package chromem

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/paperrag/vector"
)

// ErrEmbeddingRequired is returned for documents added without a vector.
var ErrEmbeddingRequired = errors.New("document embedding required")

func NewChromemVectorDB(cfg vector.Config) (vector.VectorDB, error) {
	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, err
		}

		db = d
	}

	return &chromemVectorDB{
		db:    db,
		embed: noEmbedding,
	}, nil
}

// noEmbedding keeps chromem from falling back to OpenAI, page vectors
// always come precomputed from the visual embedder.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingRequired
}

type chromemVectorDB struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

func (v *chromemVectorDB) Collection(name string) (vector.Collection, error) {
	c := v.db.GetCollection(name, v.embed)
	if c == nil {
		return nil, vector.ErrCollectionNotFound
	}

	return &collection{c}, nil
}

func (v *chromemVectorDB) CreateCollection(name string) (vector.Collection, error) {
	if v.HasCollection(name) {
		return nil, vector.ErrCollectionAlreadyExists
	}

	c, err := v.db.CreateCollection(name, nil, v.embed)
	if err != nil {
		return nil, err
	}

	return &collection{c}, nil
}

func (v *chromemVectorDB) DeleteCollection(name string) error {
	if !v.HasCollection(name) {
		return vector.ErrCollectionNotFound
	}

	return v.db.DeleteCollection(name)
}

func (v *chromemVectorDB) HasCollection(name string) bool {
	_, ok := v.db.ListCollections()[name]
	return ok
}

func (v *chromemVectorDB) ListCollections() []string {
	collections := v.db.ListCollections()

	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

type collection struct {
	collection *chromem.Collection
}

func (c *collection) Name() string {
	return c.collection.Name
}

func (c *collection) Count() int {
	return c.collection.Count()
}

func (c *collection) AddDocuments(ctx context.Context, docs []vector.Document) error {
	documents := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		documents[i] = chromem.Document{
			ID:        doc.ID,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
			Content:   doc.Content,
		}
	}

	return c.collection.AddDocuments(ctx, documents, runtime.NumCPU())
}

func (c *collection) QueryEmbedding(ctx context.Context, embedding []float32, k int) ([]vector.Document, error) {
	k = c.clamp(k)
	if k == 0 {
		return []vector.Document{}, nil
	}

	results, err := c.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, err
	}

	return toDocuments(results), nil
}

func (c *collection) clamp(k int) int {
	if k > c.collection.Count() {
		k = c.collection.Count()
	}

	if k < 0 {
		k = 0
	}

	return k
}

func toDocuments(results []chromem.Result) []vector.Document {
	docs := make([]vector.Document, len(results))
	for i, result := range results {
		docs[i] = vector.Document{
			ID:         result.ID,
			Metadata:   result.Metadata,
			Embedding:  result.Embedding,
			Content:    result.Content,
			Similarity: result.Similarity,
		}
	}

	return docs
}
