package paperrag

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

type Stage int

const (
	StageEmpty Stage = iota
	StageFetched
	StageIndexed
	StageSearched
	StageGenerated
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageFetched:
		return "fetched"
	case StageIndexed:
		return "indexed"
	case StageSearched:
		return "searched"
	case StageGenerated:
		return "generated"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Pipeline runs fetch, index, search and generate exactly once, in order.
type Pipeline struct {
	svc Service

	mu       sync.Mutex
	stage    Stage
	document *Document
	index    *Index
	pages    []Page
	response *GenerationResponse
}

func NewPipeline(svc Service) *Pipeline {
	return &Pipeline{svc: svc}
}

func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stage
}

func (p *Pipeline) expect(stage Stage) error {
	if p.stage != stage {
		return fmt.Errorf("%w: pipeline is %s, want %s", ErrInvalidTransition, p.stage, stage)
	}

	return nil
}

func (p *Pipeline) Fetch(ctx context.Context, query string, path string) (*Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(StageEmpty); err != nil {
		return nil, err
	}

	doc, err := p.svc.Fetch(ctx, query, 1, path)
	if err != nil {
		return nil, err
	}

	p.document = doc
	p.stage = StageFetched
	return doc, nil
}

// Index builds the named index over the directory the fetched paper lives in.
func (p *Pipeline) Index(ctx context.Context, name string, overwrite bool) (*Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(StageFetched); err != nil {
		return nil, err
	}

	index, err := p.svc.Index(ctx, filepath.Dir(p.document.Path), name, overwrite)
	if err != nil {
		return nil, err
	}

	p.index = index
	p.stage = StageIndexed
	return index, nil
}

func (p *Pipeline) Search(ctx context.Context, query string, k int) ([]Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(StageIndexed); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, IndexName, p.index.Name)

	pages, err := p.svc.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	p.pages = pages
	p.stage = StageSearched
	return pages, nil
}

// Generate answers query from the best-ranked page of the last search.
func (p *Pipeline) Generate(ctx context.Context, query string) (*GenerationResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.expect(StageSearched); err != nil {
		return nil, err
	}

	if len(p.pages) == 0 {
		return nil, ErrNoPages
	}

	resp, err := p.svc.Generate(ctx, query, p.pages[:1])
	if err != nil {
		return nil, err
	}

	p.response = resp
	p.stage = StageGenerated
	return resp, nil
}

type RunRequest struct {
	Topic     string `json:"topic"`
	Path      string `json:"path"`
	IndexName string `json:"index_name"`
	Overwrite bool   `json:"overwrite"`
	Query     string `json:"query"`
	K         int    `json:"k"`
}

type RunResult struct {
	Document *Document           `json:"document"`
	Index    *Index              `json:"index"`
	Pages    []Page              `json:"pages"`
	Response *GenerationResponse `json:"response"`
}

// Run drives every stage for one topic and one question.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	doc, err := p.Fetch(ctx, req.Topic, req.Path)
	if err != nil {
		return nil, err
	}

	index, err := p.Index(ctx, req.IndexName, req.Overwrite)
	if err != nil {
		return nil, err
	}

	pages, err := p.Search(ctx, req.Query, req.K)
	if err != nil {
		return nil, err
	}

	resp, err := p.Generate(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Document: doc,
		Index:    index,
		Pages:    pages,
		Response: resp,
	}, nil
}
