package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flarexio/paperrag"
)

type indexesService struct {
	paperrag.Service
	indexes []paperrag.Index
	err     error
}

func (s *indexesService) Indexes(ctx context.Context) ([]paperrag.Index, error) {
	return s.indexes, s.err
}

func TestSearchIndex(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	restored := &indexesService{
		indexes: []paperrag.Index{{Name: "drafts"}, {Name: "image_index"}},
	}

	name, err := searchIndex(ctx, restored, "", "image_index")
	assert.NoError(err)
	assert.Equal("image_index", name, "a fresh process falls back to indexer.name")

	name, err = searchIndex(ctx, restored, " drafts ", "image_index")
	assert.NoError(err)
	assert.Equal("drafts", name, "the flag wins")

	active := &indexesService{
		indexes: []paperrag.Index{{Name: "drafts", Active: true}, {Name: "image_index"}},
	}

	name, err = searchIndex(ctx, active, "", "image_index")
	assert.NoError(err)
	assert.Equal("drafts", name, "the active index wins over indexer.name")

	empty := &indexesService{}

	name, err = searchIndex(ctx, empty, "", "image_index")
	assert.NoError(err)
	assert.Empty(name, "the service reports the missing index itself")

	broken := &indexesService{err: errors.New("vector store closed")}

	_, err = searchIndex(ctx, broken, "", "image_index")
	assert.Error(err)
}

func TestLoadConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	cfg, err := loadConfig(dir)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.True(cfg.Vector.Persistent)
	assert.Equal(filepath.Join(dir, "vectors"), cfg.Vector.Path)
	assert.Equal(paperrag.DefaultConfig().Indexer.Name, cfg.Indexer.Name)
}
