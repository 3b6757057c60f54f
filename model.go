package paperrag

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/paperrag/arxiv"
	"github.com/flarexio/paperrag/embedding"
	"github.com/flarexio/paperrag/llm"
	"github.com/flarexio/paperrag/pdf"
	"github.com/flarexio/paperrag/vector"
)

var (
	ErrFetch              = arxiv.ErrFetch
	ErrPaperNotFound      = arxiv.ErrNotFound
	ErrIndexAlreadyExists = errors.New("index already exists")
	ErrIndexNotFound      = errors.New("index not found")
	ErrNotIndexed         = errors.New("no index built")
	ErrNoDocuments        = errors.New("no documents to index")
	ErrNoPages            = errors.New("no pages to generate from")
	ErrInvalidK           = errors.New("k must be positive")
	ErrInvalidQuery       = errors.New("query must not be empty")
	ErrInvalidIndexName   = errors.New("invalid index name")
	ErrUpstream           = llm.ErrUpstream
	ErrEmptyResponse      = llm.ErrEmptyResponse
	ErrInvalidTransition  = errors.New("invalid pipeline transition")
	ErrCancelled          = errors.New("operation cancelled")
	ErrDocumentNotFound   = errors.New("document not found")
)

// errorKinds is ordered so that narrower kinds match first.
var errorKinds = []error{
	ErrPaperNotFound,
	ErrFetch,
	ErrIndexAlreadyExists,
	ErrIndexNotFound,
	ErrNotIndexed,
	ErrNoDocuments,
	ErrNoPages,
	ErrInvalidK,
	ErrInvalidQuery,
	ErrInvalidIndexName,
	ErrEmptyResponse,
	ErrUpstream,
	ErrInvalidTransition,
	ErrCancelled,
	ErrDocumentNotFound,
}

// Kind returns the sentinel error err belongs to, or nil.
func Kind(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}

type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.kind
}

// ParseError rebuilds an error received over the wire so that errors.Is
// still matches its sentinel.
func ParseError(msg string) error {
	for _, kind := range errorKinds {
		if strings.Contains(msg, kind.Error()) {
			return &remoteError{msg, kind}
		}
	}

	return errors.New(msg)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

type ContextKey string

const (
	// IndexName selects the index a search runs against.
	IndexName ContextKey = "index_name"
)

type Config struct {
	Path      string           `yaml:"path" validate:"required"`
	Arxiv     arxiv.Config     `yaml:"arxiv"`
	Renderer  pdf.Config       `yaml:"renderer"`
	Embedding embedding.Config `yaml:"embedding"`
	Vector    vector.Config    `yaml:"vector"`
	LLM       llm.Config       `yaml:"llm"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Indexer   IndexerConfig    `yaml:"indexer"`
	Search    SearchConfig     `yaml:"search"`
}

type CatalogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory bool   `yaml:"inMemory"`
}

type IndexerConfig struct {
	Name        string `yaml:"name"`
	Workers     int    `yaml:"workers" validate:"gte=0"`
	StoreImages bool   `yaml:"storeImages"`
}

type SearchConfig struct {
	K           int    `yaml:"k" validate:"gte=0"`
	GenerateTop int    `yaml:"generateTop" validate:"gte=0"`
	Index       string `yaml:"index"`
}

func DefaultConfig() Config {
	return Config{
		Path:      "papers",
		Arxiv:     arxiv.DefaultConfig(),
		Renderer:  pdf.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
		LLM:       llm.DefaultConfig(),
		Indexer: IndexerConfig{
			Name:        "image_index",
			Workers:     2,
			StoreImages: true,
		},
		Search: SearchConfig{
			K:           2,
			GenerateTop: 1,
		},
	}
}

var validate = validator.New()

func (cfg Config) Validate() error {
	return validate.Struct(cfg)
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// Document is a paper stored on disk.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	SourceURI string    `json:"source_uri"`
	Path      string    `json:"path"`
	FetchedAt time.Time `json:"fetched_at"`
}

func PaperToDocument(paper arxiv.Paper, path string) *Document {
	return &Document{
		ID:        paper.ShortID,
		Title:     paper.Title,
		Authors:   paper.Authors,
		Summary:   paper.Summary,
		SourceURI: paper.PDFURL,
		Path:      path,
		FetchedAt: time.Now(),
	}
}

// Index is a named, searchable collection of page embeddings.
type Index struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path,omitempty"`
	Documents int       `json:"documents"`
	Pages     int       `json:"pages"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
	Elapsed   Duration  `json:"elapsed,omitempty"`
	Active    bool      `json:"active"`
}

// Page is one page of one document as the index knows it.
type Page struct {
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Path       string    `json:"path,omitempty"`
	Image      []byte    `json:"image,omitempty"`
	Text       string    `json:"text,omitempty"`
	Embedding  []float32 `json:"-"`
	Score      float32   `json:"score"`
}

func (p Page) Key() string {
	return fmt.Sprintf("%s#%d", p.DocumentID, p.PageNumber)
}

type GenerationRequest struct {
	Query     string `json:"query"`
	Pages     []Page `json:"pages"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type GenerationResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type Answer struct {
	Query string `json:"query"`
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Pages []Page `json:"pages"`
}

const (
	metaDocumentID = "document_id"
	metaPageNumber = "page_number"
	metaSourcePath = "source_path"
	metaImage      = "image"
)

// PageToDocument converts a page into its vector record. The image is kept
// inline only when storeImage is set.
func PageToDocument(p Page, storeImage bool) vector.Document {
	metadata := map[string]string{
		metaDocumentID: p.DocumentID,
		metaPageNumber: strconv.Itoa(p.PageNumber),
		metaSourcePath: p.Path,
	}

	if storeImage && len(p.Image) > 0 {
		metadata[metaImage] = base64.StdEncoding.EncodeToString(p.Image)
	}

	return vector.Document{
		ID:        p.Key(),
		Content:   p.Text,
		Metadata:  metadata,
		Embedding: p.Embedding,
	}
}

func DocumentToPage(doc vector.Document) (Page, error) {
	n, err := strconv.Atoi(doc.Metadata[metaPageNumber])
	if err != nil {
		return Page{}, fmt.Errorf("invalid page record %s: %w", doc.ID, err)
	}

	p := Page{
		DocumentID: doc.Metadata[metaDocumentID],
		PageNumber: n,
		Path:       doc.Metadata[metaSourcePath],
		Text:       doc.Content,
		Score:      doc.Similarity,
	}

	if encoded, ok := doc.Metadata[metaImage]; ok {
		image, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Page{}, fmt.Errorf("invalid page image %s: %w", doc.ID, err)
		}

		p.Image = image
	}

	return p, nil
}

// PaperSource finds papers and stores their PDFs locally.
type PaperSource interface {
	Search(ctx context.Context, query string, limit int) ([]arxiv.Paper, error)
	Download(ctx context.Context, paper arxiv.Paper, path string) (string, error)
}

// Catalog records fetched documents.
type Catalog interface {
	Save(doc *Document) error
	Find(id string) (*Document, error)
	FindByPath(path string) ([]Document, error)
	Delete(id string) error
	List() ([]Document, error)
	Close() error
}
