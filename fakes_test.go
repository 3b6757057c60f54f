package paperrag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-pdf/fpdf"

	"github.com/flarexio/paperrag/arxiv"
	"github.com/flarexio/paperrag/llm"
	"github.com/flarexio/paperrag/pdf"
	"github.com/flarexio/paperrag/vector"
)

const dims = 8

func writePaper(t *testing.T, path string, pages ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 16)

	for _, text := range pages {
		doc.AddPage()
		doc.Cell(40, 10, text)
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatal(err)
	}
}

// fakePapers serves a fixed catalogue and writes a fresh fixture PDF on
// every download, so repeated downloads change the file content.
type fakePapers struct {
	t      *testing.T
	papers map[string][]arxiv.Paper
	pages  int

	downloads atomic.Int32
}

func newFakePapers(t *testing.T) *fakePapers {
	return &fakePapers{
		t: t,
		papers: map[string][]arxiv.Paper{
			"ColPali": {
				{
					ID:      "http://arxiv.org/abs/2407.01449v6",
					ShortID: "2407.01449v6",
					Title:   "ColPali: Efficient Document Retrieval with Vision Language Models",
					PDFURL:  "https://arxiv.org/pdf/2407.01449v6",
				},
				{
					ID:      "http://arxiv.org/abs/2004.12832v2",
					ShortID: "2004.12832v2",
					Title:   "ColBERT",
					PDFURL:  "https://arxiv.org/pdf/2004.12832v2",
				},
			},
			"ColBERT": {
				{
					ID:      "http://arxiv.org/abs/2004.12832v2",
					ShortID: "2004.12832v2",
					Title:   "ColBERT",
					PDFURL:  "https://arxiv.org/pdf/2004.12832v2",
				},
			},
		},
		pages: 3,
	}
}

func (f *fakePapers) Search(ctx context.Context, query string, limit int) ([]arxiv.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if query == "offline" {
		return nil, fmt.Errorf("%w: status 503", arxiv.ErrFetch)
	}

	papers := f.papers[query]
	if len(papers) > limit {
		papers = papers[:limit]
	}

	return papers, nil
}

func (f *fakePapers) Download(ctx context.Context, paper arxiv.Paper, path string) (string, error) {
	n := f.downloads.Add(1)

	target := path
	if filepath.Ext(path) != ".pdf" {
		target = filepath.Join(path, paper.ShortID+".pdf")
	}

	pages := make([]string, f.pages)
	for i := range pages {
		pages[i] = fmt.Sprintf("%s page %d download %d", paper.ShortID, i+1, n)
	}

	writePaper(f.t, target, pages...)
	return target, nil
}

// fakeRenderer counts pages with pdfcpu and renders each page to a
// recognisable byte string instead of a real PNG.
type fakeRenderer struct {
	renders atomic.Int32
	fail    string
}

func (r *fakeRenderer) PageCount(ctx context.Context, path string) (int, error) {
	return pdf.PageCount(path)
}

func (r *fakeRenderer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.fail != "" && strings.Contains(path, r.fail) {
		return nil, errors.New("render failed")
	}

	r.renders.Add(1)
	return []byte(fmt.Sprintf("png:%s:%d", filepath.Base(path), page)), nil
}

var (
	pageImage = regexp.MustCompile(`:(\d+)$`)
	digit     = regexp.MustCompile(`\d+`)
)

// fakeEmbedder places page n and queries mentioning n on the same axis.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failCall int
	closed   bool
}

func oneHot(n int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = 0.1
	}

	if n > 0 {
		v[(n-1)%dims] = 1
	}

	return v
}

func (e *fakeEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.failCall > 0 && call >= e.failCall {
		return nil, errors.New("embedding service unavailable")
	}

	vectors := make([][]float32, len(images))
	for i, image := range images {
		n := 0
		if m := pageImage.FindSubmatch(image); m != nil {
			n, _ = strconv.Atoi(string(m[1]))
		}

		vectors[i] = oneHot(n)
	}

	return vectors, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	n, _ := strconv.Atoi(digit.FindString(query))
	return oneHot(n), nil
}

func (e *fakeEmbedder) Model() string {
	return "fake-colpali"
}

func (e *fakeEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	text     string
	status   int
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.status != 0 {
		return nil, &llm.APIError{
			Provider:   "fake",
			StatusCode: p.status,
			Message:    http.StatusText(p.status),
		}
	}

	return &llm.Response{
		Text:  p.text,
		Model: "fake-vision",
	}, nil
}

func (p *fakeProvider) Close() error {
	return nil
}

func (p *fakeProvider) last() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.requests[len(p.requests)-1]
}

// flakyVector fails every AddDocuments once failAdd is set.
type flakyVector struct {
	vector.VectorDB
	failAdd atomic.Bool
}

func (v *flakyVector) CreateCollection(name string) (vector.Collection, error) {
	c, err := v.VectorDB.CreateCollection(name)
	if err != nil {
		return nil, err
	}

	return &flakyCollection{c, v}, nil
}

type flakyCollection struct {
	vector.Collection
	db *flakyVector
}

func (c *flakyCollection) AddDocuments(ctx context.Context, docs []vector.Document) error {
	if c.db.failAdd.Load() {
		return errors.New("no space left on device")
	}

	return c.Collection.AddDocuments(ctx, docs)
}

// fakeCatalog keeps documents in a map.
type fakeCatalog struct {
	mu     sync.Mutex
	docs   map[string]Document
	closed bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{docs: make(map[string]Document)}
}

func (c *fakeCatalog) Save(doc *Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[doc.ID] = *doc
	return nil
}

func (c *fakeCatalog) Find(id string) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	return &doc, nil
}

func (c *fakeCatalog) FindByPath(path string) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var docs []Document
	for _, doc := range c.docs {
		if doc.Path == path {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func (c *fakeCatalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	delete(c.docs, id)
	return nil
}

func (c *fakeCatalog) List() ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := make([]Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})

	return docs, nil
}

func (c *fakeCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}
