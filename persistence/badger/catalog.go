package badger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/flarexio/paperrag"
)

// NewCatalog opens the document catalog. The store lives in memory when
// cfg.InMemory is set, otherwise under cfg.Path.
func NewCatalog(cfg paperrag.CatalogConfig) (paperrag.Catalog, error) {
	options := badgerhold.DefaultOptions

	if cfg.InMemory {
		options.Options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		options.Options = badger.DefaultOptions(cfg.Path)
	}

	// badger logs to stderr on its own; the service logs through zap
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	return &catalog{store}, nil
}

type catalog struct {
	store *badgerhold.Store
}

func (c *catalog) Save(doc *paperrag.Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}

	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = time.Now()
	}

	return c.store.Upsert(doc.ID, doc)
}

func (c *catalog) Find(id string) (*paperrag.Document, error) {
	var doc paperrag.Document
	if err := c.store.Get(id, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", paperrag.ErrDocumentNotFound, id)
		}

		return nil, err
	}

	return &doc, nil
}

// FindByPath returns the documents stored at path.
func (c *catalog) FindByPath(path string) ([]paperrag.Document, error) {
	var docs []paperrag.Document
	if err := c.store.Find(&docs, badgerhold.Where("Path").Eq(path)); err != nil {
		return nil, err
	}

	return docs, nil
}

func (c *catalog) Delete(id string) error {
	if err := c.store.Delete(id, paperrag.Document{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", paperrag.ErrDocumentNotFound, id)
		}

		return err
	}

	return nil
}

func (c *catalog) List() ([]paperrag.Document, error) {
	var docs []paperrag.Document
	if err := c.store.Find(&docs, nil); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].FetchedAt.Equal(docs[j].FetchedAt) {
			return docs[i].FetchedAt.Before(docs[j].FetchedAt)
		}

		return docs[i].ID < docs[j].ID
	})

	return docs, nil
}

func (c *catalog) Close() error {
	return c.store.Close()
}
