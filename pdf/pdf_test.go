package pdf

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
)

func writePaper(t *testing.T, path string, pages ...string) {
	t.Helper()

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

func TestPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	writePaper(t, path, "Abstract", "Table 2", "References")

	n, err := PageCount(path)
	if err != nil {
		assert.Fail(t, err.Error())
		return
	}

	assert.Equal(t, 3, n)
}

func TestExtractPageTexts(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "paper.pdf")
	writePaper(t, path, "Abstract", "Table 2")

	texts, err := ExtractPageTexts(path)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Len(texts, 2)
	assert.Contains(texts[1], "Table")
}

func TestScan(t *testing.T) {
	assert := assert.New(t)

	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	writePaper(t, filepath.Join(root, "b.pdf"), "b")
	writePaper(t, filepath.Join(nested, "a.PDF"), "a")
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0o644)

	files, err := Scan(root)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal([]string{
		filepath.Join(root, "b.pdf"),
		filepath.Join(nested, "a.PDF"),
	}, files)
}

func TestPopplerRenderPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}

	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "paper.pdf")
	writePaper(t, path, "Abstract", "Table 2")

	r, err := NewPoppler(Config{DPI: 36})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	img, err := r.RenderPage(context.Background(), path, 2)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.True(bytes.HasPrefix(img, []byte("\x89PNG")))

	_, err = r.RenderPage(context.Background(), path, 0)
	assert.ErrorIs(err, ErrPageOutOfRange)
}

func TestNewPopplerMissingBinary(t *testing.T) {
	_, err := NewPoppler(Config{Binary: "pdftoppm-does-not-exist"})
	assert.ErrorIs(t, err, ErrRendererNotFound)
}
