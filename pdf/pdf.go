// Package pdf turns stored papers into page images and page text.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	rsc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	ErrRendererNotFound = errors.New("pdf renderer not found")
	ErrPageOutOfRange   = errors.New("page out of range")
)

// Renderer rasterizes single PDF pages.
type Renderer interface {
	PageCount(ctx context.Context, path string) (int, error)

	// RenderPage returns the PNG encoding of a 1-based page.
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

type Config struct {
	Binary string `yaml:"binary"`
	DPI    int    `yaml:"dpi" validate:"gte=0"`
}

func init() {
	// keep pdfcpu from writing its configuration under the user's home
	api.DisableConfigDir()
}

func DefaultConfig() Config {
	return Config{
		Binary: "pdftoppm",
		DPI:    150,
	}
}

// PageCount reads the page count from the document catalog.
func PageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, err
	}

	return pdfCtx.PageCount, nil
}

// ExtractPageTexts returns the plain text of every page, in page order.
// Pages whose text cannot be decoded come back empty.
func ExtractPageTexts(path string) (texts []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("extracting text from %s: %v", path, r)
		}
	}()

	f, r, err := rsc.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	texts = make([]string, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		texts[i-1] = strings.TrimSpace(text)
	}

	return texts, nil
}

// Scan lists every PDF under root, sorted by path.
func Scan(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
