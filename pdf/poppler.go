package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Poppler renders pages with the pdftoppm binary from poppler-utils.
type Poppler struct {
	bin string
	dpi int
}

func NewPoppler(cfg Config) (*Poppler, error) {
	name := cfg.Binary
	if name == "" {
		name = "pdftoppm"
	}

	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRendererNotFound, err)
	}

	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = 150
	}

	return &Poppler{
		bin: bin,
		dpi: dpi,
	}, nil
}

func (p *Poppler) PageCount(ctx context.Context, path string) (int, error) {
	return PageCount(path)
}

func (p *Poppler) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}

	dir, err := os.MkdirTemp("", "paperrag-render-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)

	cmd := exec.CommandContext(ctx, p.bin,
		"-png",
		"-r", strconv.Itoa(p.dpi),
		"-f", n,
		"-l", n,
		"-singlefile",
		path,
		prefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("rendering page %d of %s: %w: %s", page, path, err, strings.TrimSpace(stderr.String()))
	}

	return os.ReadFile(prefix + ".png")
}
