// Package arxiv searches the arXiv export API and downloads paper PDFs.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the arXiv export query endpoint.
	BaseURL = "https://export.arxiv.org/api/query"

	// RateLimit follows the arXiv API terms: one request every three seconds.
	RateLimit = 3 * time.Second

	DefaultTimeout = 60 * time.Second
)

var (
	ErrFetch    = errors.New("fetch failed")
	ErrNotFound = fmt.Errorf("%w: paper not found", ErrFetch)
)

type Config struct {
	BaseURL   string        `yaml:"baseURL" validate:"omitempty,url"`
	RateLimit time.Duration `yaml:"rateLimit"`
	Timeout   time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   BaseURL,
		RateLimit: RateLimit,
		Timeout:   DefaultTimeout,
	}
}

type Paper struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"short_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Authors   []string  `json:"authors"`
	Published time.Time `json:"published"`
	PDFURL    string    `json:"pdf_url"`
}

// Client is a rate-limited client for the arXiv export API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit spaces requests at least every apart; zero disables limiting.
func WithRateLimit(every time.Duration) ClientOption {
	return func(c *Client) {
		if every <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}

		c.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(RateLimit), 1),
		baseURL:    BaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func NewClientWithConfig(cfg Config) *Client {
	opts := []ClientOption{
		WithRateLimit(cfg.RateLimit),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}

	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return NewClient(opts...)
}

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Search returns up to limit papers ranked by relevance.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrFetch)
	}

	if limit <= 0 {
		limit = 1
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	body, err := c.get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var f feed
	if err := xml.NewDecoder(body).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decoding feed: %w", ErrFetch, err)
	}

	papers := make([]Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		// arXiv reports query errors as a single entry pointing at its error page.
		if strings.Contains(e.ID, "/api/errors") {
			return nil, fmt.Errorf("%w: %s", ErrFetch, strings.TrimSpace(e.Summary))
		}

		papers = append(papers, e.paper())
	}

	return papers, nil
}

func (e entry) paper() Paper {
	p := Paper{
		ID:      strings.TrimSpace(e.ID),
		Title:   strings.Join(strings.Fields(e.Title), " "),
		Summary: strings.TrimSpace(e.Summary),
	}

	p.ShortID = ShortID(p.ID)

	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t
	}

	for _, a := range e.Authors {
		p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
	}

	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}

	if p.PDFURL == "" && p.ShortID != "" {
		p.PDFURL = "https://arxiv.org/pdf/" + p.ShortID
	}

	return p
}

// ShortID strips the abs URL prefix from an entry id, e.g. 2407.01449v6.
func ShortID(id string) string {
	if i := strings.Index(id, "/abs/"); i >= 0 {
		return id[i+len("/abs/"):]
	}

	return id
}

// Download writes the paper PDF to path and returns the written file.
// A path without a .pdf extension is treated as a directory.
func (c *Client) Download(ctx context.Context, paper Paper, path string) (string, error) {
	if paper.PDFURL == "" {
		return "", fmt.Errorf("%w: paper %s has no pdf link", ErrFetch, paper.ID)
	}

	target := path
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		name := strings.ReplaceAll(paper.ShortID, "/", "_")
		target = filepath.Join(path, name+".pdf")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	body, err := c.get(ctx, paper.PDFURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}

	return target, nil
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetch, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp.Body, nil
}
