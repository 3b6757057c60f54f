package paperrag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flarexio/paperrag/embedding"
	"github.com/flarexio/paperrag/llm"
	"github.com/flarexio/paperrag/pdf"
	"github.com/flarexio/paperrag/vector"
)

// Service defines the core logic of paperrag.
type Service interface {

	// Close releases the embedder, the chat provider and the catalog.
	Close() error

	// Fetch finds the best-ranked paper for query and stores its PDF under path.
	Fetch(ctx context.Context, query string, limit int, path string) (*Document, error)

	// Documents lists the fetched papers.
	Documents(ctx context.Context) ([]Document, error)

	// Document returns one fetched paper by id.
	Document(ctx context.Context, id string) (*Document, error)

	// Index renders and embeds every page of every PDF under path into the
	// named index, which then becomes the active one.
	Index(ctx context.Context, path string, name string, overwrite bool) (*Index, error)

	// Indexes lists the known indexes.
	Indexes(ctx context.Context) ([]Index, error)

	// Search returns the k pages most similar to query.
	Search(ctx context.Context, query string, k int) ([]Page, error)

	// Generate answers query from the given page images.
	Generate(ctx context.Context, query string, pages []Page) (*GenerationResponse, error)

	// Ask searches and generates in one call.
	Ask(ctx context.Context, query string, k int) (*Answer, error)
}

type ServiceMiddleware func(Service) Service

type Dependencies struct {
	Papers   PaperSource
	Renderer pdf.Renderer
	Embedder embedding.Embedder
	Vector   vector.VectorDB
	Provider llm.Provider

	// Catalog is optional.
	Catalog Catalog
}

func (deps Dependencies) validate() error {
	var missing []string

	if deps.Papers == nil {
		missing = append(missing, "papers")
	}

	if deps.Renderer == nil {
		missing = append(missing, "renderer")
	}

	if deps.Embedder == nil {
		missing = append(missing, "embedder")
	}

	if deps.Vector == nil {
		missing = append(missing, "vector")
	}

	if deps.Provider == nil {
		missing = append(missing, "provider")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", "))
	}

	return nil
}

func NewService(ctx context.Context, cfg Config, deps Dependencies) (Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("service", "paperrag"),
	)

	svc := &service{
		papers:      deps.Papers,
		renderer:    deps.Renderer,
		embedder:    deps.Embedder,
		vector:      deps.Vector,
		provider:    deps.Provider,
		catalog:     deps.Catalog,
		indexes:     make(map[string]*Index),
		collections: make(map[string]string),

		cfg: cfg,
		log: log,
	}

	// Collections that survived a restart are searchable, but only by name
	// until an index is built or configured as the active one.
	for _, collection := range deps.Vector.ListCollections() {
		name, _, _ := strings.Cut(collection, buildSeparator)

		// A newer build of the same index sorts last.
		if prev, ok := svc.collections[name]; ok {
			stale := min(prev, collection)
			if err := deps.Vector.DeleteCollection(stale); err != nil {
				log.Warn("failed to drop stale build",
					zap.String("collection", stale),
					zap.Error(err),
				)
			}

			collection = max(prev, collection)
		}

		svc.collections[name] = collection
		svc.indexes[name] = &Index{Name: name}
	}

	if name := cfg.Search.Index; name != "" {
		if _, ok := svc.indexes[name]; ok {
			svc.active = name
		} else {
			log.Warn("configured search index not found", zap.String("index", name))
		}
	}

	return svc, nil
}

type service struct {
	papers   PaperSource
	renderer pdf.Renderer
	embedder embedding.Embedder
	vector   vector.VectorDB
	provider llm.Provider
	catalog  Catalog

	// builds serializes index builds
	builds sync.Mutex

	// mu guards indexes, collections and active against searches
	mu          sync.RWMutex
	indexes     map[string]*Index
	collections map[string]string
	active      string

	cfg Config
	log *zap.Logger
}

// buildSeparator joins an index name and the build that backs it in a
// collection name.
const buildSeparator = "@"

// collection resolves an index name to the collection of its latest build.
func (svc *service) collection(name string) (vector.Collection, error) {
	physical, ok := svc.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	collection, err := svc.vector.Collection(physical)
	if err != nil {
		if errors.Is(err, vector.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
		}

		return nil, err
	}

	return collection, nil
}

func (svc *service) Close() error {
	var errs []error

	if err := svc.embedder.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := svc.provider.Close(); err != nil {
		errs = append(errs, err)
	}

	if svc.catalog != nil {
		if err := svc.catalog.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// fail reports a cancelled context as ErrCancelled.
func fail(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		return cancelled(ctx.Err())
	}

	return err
}

func (svc *service) Fetch(ctx context.Context, query string, limit int, path string) (*Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	if limit <= 0 {
		limit = 1
	}

	if path == "" {
		path = svc.cfg.Path
	}

	papers, err := svc.papers.Search(ctx, query, limit)
	if err != nil {
		return nil, fail(ctx, err)
	}

	if len(papers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPaperNotFound, query)
	}

	paper := papers[0]

	file, err := svc.papers.Download(ctx, paper, path)
	if err != nil {
		return nil, fail(ctx, err)
	}

	doc := PaperToDocument(paper, file)

	if svc.catalog != nil {
		svc.record(doc)
	}

	return doc, nil
}

// record saves doc to the catalog and forgets the papers whose file it
// has just overwritten.
func (svc *service) record(doc *Document) {
	log := svc.log.With(
		zap.String("document_id", doc.ID),
		zap.String("path", doc.Path),
	)

	stale, err := svc.catalog.FindByPath(doc.Path)
	if err != nil {
		log.Warn("failed to look up documents by path", zap.Error(err))
	}

	for _, old := range stale {
		if old.ID == doc.ID {
			continue
		}

		if err := svc.catalog.Delete(old.ID); err != nil {
			log.Warn("failed to forget overwritten document",
				zap.String("overwritten_id", old.ID),
				zap.Error(err),
			)
		}
	}

	if err := svc.catalog.Save(doc); err != nil {
		log.Warn("failed to record document", zap.Error(err))
	}
}

func (svc *service) Documents(ctx context.Context) ([]Document, error) {
	if svc.catalog != nil {
		return svc.catalog.List()
	}

	files, err := pdf.Scan(svc.cfg.Path)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, file := range files {
		docs = append(docs, Document{
			ID:   documentID(svc.cfg.Path, file),
			Path: file,
		})
	}

	return docs, nil
}

func (svc *service) Document(ctx context.Context, id string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrDocumentNotFound)
	}

	if svc.catalog != nil {
		return svc.catalog.Find(id)
	}

	docs, err := svc.Documents(ctx)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if doc.ID == id {
			return &doc, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
}

// documentID names a file by its path relative to root, without extension.
func documentID(root string, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		rel = filepath.Base(file)
	}

	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

func (svc *service) Index(ctx context.Context, path string, name string, overwrite bool) (*Index, error) {
	if path == "" {
		path = svc.cfg.Path
	}

	if name == "" {
		name = svc.cfg.Indexer.Name
	}

	if strings.Contains(name, buildSeparator) {
		return nil, fmt.Errorf("%w: %q contains %q", ErrInvalidIndexName, name, buildSeparator)
	}

	svc.builds.Lock()
	defer svc.builds.Unlock()

	svc.mu.RLock()
	_, exists := svc.collections[name]
	svc.mu.RUnlock()

	if exists && !overwrite {
		return nil, fmt.Errorf("%w: %s", ErrIndexAlreadyExists, name)
	}

	files, err := pdf.Scan(path)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, path)
	}

	start := time.Now()

	workers := svc.cfg.Indexer.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([][]Page, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		g.Go(func() error {
			pages, err := svc.indexDocument(gctx, documentID(path, file), file)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", file, err)
			}

			results[i] = pages
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fail(ctx, err)
	}

	var docs []vector.Document
	for _, pages := range results {
		for _, p := range pages {
			docs = append(docs, PageToDocument(p, svc.cfg.Indexer.StoreImages))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	buildID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	// The build lands in its own collection, the previous one keeps
	// serving searches until the swap.
	physical := name + buildSeparator + buildID.String()

	collection, err := svc.vector.CreateCollection(physical)
	if err != nil {
		return nil, err
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs); err != nil {
			svc.vector.DeleteCollection(physical)
			return nil, fail(ctx, err)
		}
	}

	index := &Index{
		ID:        buildID.String(),
		Name:      name,
		Path:      path,
		Documents: len(files),
		Pages:     len(docs),
		BuiltAt:   time.Now(),
		Elapsed:   Duration(time.Since(start)),
	}

	svc.mu.Lock()
	prev, replaced := svc.collections[name]
	svc.collections[name] = physical
	svc.indexes[name] = index
	svc.active = name
	svc.mu.Unlock()

	if replaced {
		if err := svc.vector.DeleteCollection(prev); err != nil {
			svc.log.Warn("failed to drop previous build",
				zap.String("index", name),
				zap.String("collection", prev),
				zap.Error(err),
			)
		}
	}

	result := *index
	result.Active = true
	return &result, nil
}

// indexDocument renders and embeds every page of one file. Page text is
// best effort.
func (svc *service) indexDocument(ctx context.Context, id string, file string) ([]Page, error) {
	n, err := svc.renderer.PageCount(ctx, file)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, nil
	}

	texts, err := pdf.ExtractPageTexts(file)
	if err != nil {
		svc.log.Debug("page text unavailable",
			zap.String("path", file),
			zap.Error(err),
		)
	}

	pages := make([]Page, n)
	images := make([][]byte, n)

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		image, err := svc.renderer.RenderPage(ctx, file, i+1)
		if err != nil {
			return nil, err
		}

		images[i] = image
		pages[i] = Page{
			DocumentID: id,
			PageNumber: i + 1,
			Path:       file,
			Image:      image,
		}

		if i < len(texts) {
			pages[i].Text = texts[i]
		}
	}

	vectors, err := svc.embedder.EmbedImages(ctx, images)
	if err != nil {
		return nil, err
	}

	if len(vectors) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", embedding.ErrDimensionsMismatch, len(vectors), n)
	}

	for i := range pages {
		pages[i].Embedding = vectors[i]
	}

	return pages, nil
}

func (svc *service) Indexes(ctx context.Context) ([]Index, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	indexes := make([]Index, 0, len(svc.collections))
	for name := range svc.collections {
		index := Index{Name: name}
		if known, ok := svc.indexes[name]; ok {
			index = *known
		}

		if collection, err := svc.collection(name); err == nil {
			index.Pages = collection.Count()
		}

		index.Active = name == svc.active
		indexes = append(indexes, index)
	}

	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].Name < indexes[j].Name
	})

	return indexes, nil
}

func (svc *service) Search(ctx context.Context, query string, k int) ([]Page, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()

	name := svc.active
	if selected, ok := ctx.Value(IndexName).(string); ok && selected != "" {
		name = selected
	}

	if name == "" {
		return nil, ErrNotIndexed
	}

	collection, err := svc.collection(name)
	if err != nil {
		return nil, err
	}

	vec, err := svc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fail(ctx, err)
	}

	docs, err := collection.QueryEmbedding(ctx, vec, k)
	if err != nil {
		return nil, fail(ctx, err)
	}

	pages := make([]Page, 0, len(docs))
	for _, doc := range docs {
		p, err := DocumentToPage(doc)
		if err != nil {
			return nil, err
		}

		if len(p.Image) == 0 && p.Path != "" {
			image, err := svc.renderer.RenderPage(ctx, p.Path, p.PageNumber)
			if err != nil {
				return nil, fail(ctx, err)
			}

			p.Image = image
		}

		pages = append(pages, p)
	}

	SortPages(pages)
	return pages, nil
}

// SortPages orders pages by descending score, then document id, then page number.
func SortPages(pages []Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]

		if a.Score != b.Score {
			return a.Score > b.Score
		}

		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}

		return a.PageNumber < b.PageNumber
	})
}

func (svc *service) Generate(ctx context.Context, query string, pages []Page) (*GenerationResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}

	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	req := GenerationRequest{
		Query:     query,
		Pages:     make([]Page, len(pages)),
		MaxTokens: svc.cfg.LLM.MaxTokens,
	}

	for i, p := range pages {
		if len(p.Image) == 0 {
			if p.Path == "" {
				return nil, fmt.Errorf("%w: page %s has no image", ErrNoPages, p.Key())
			}

			image, err := svc.renderer.RenderPage(ctx, p.Path, p.PageNumber)
			if err != nil {
				return nil, fail(ctx, err)
			}

			p.Image = image
		}

		req.Pages[i] = p
	}

	resp, err := svc.provider.Chat(ctx, ChatRequest(req))
	if err != nil {
		return nil, fail(ctx, err)
	}

	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyResponse
	}

	return &GenerationResponse{
		Text:  resp.Text,
		Model: resp.Model,
	}, nil
}

// ChatRequest builds a single user message holding the query followed by
// one image per page.
func ChatRequest(req GenerationRequest) llm.Request {
	parts := make([]llm.Part, 0, len(req.Pages)+1)
	parts = append(parts, llm.TextPart(req.Query))

	for _, p := range req.Pages {
		parts = append(parts, llm.ImagePart(p.Image, "image/png"))
	}

	return llm.Request{
		Messages: []llm.Message{
			{
				Role:  llm.RoleUser,
				Parts: parts,
			},
		},
		MaxTokens: req.MaxTokens,
	}
}

func (svc *service) Ask(ctx context.Context, query string, k int) (*Answer, error) {
	pages, err := svc.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	top := svc.cfg.Search.GenerateTop
	if top <= 0 {
		top = 1
	}

	top = min(top, len(pages))

	resp, err := svc.Generate(ctx, query, pages[:top])
	if err != nil {
		return nil, err
	}

	return &Answer{
		Query: query,
		Text:  resp.Text,
		Model: resp.Model,
		Pages: pages,
	}, nil
}
