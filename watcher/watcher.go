package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Config struct {
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
}

func DefaultConfig() Config {
	return Config{
		Debounce:   2 * time.Second,
		Extensions: []string{".pdf"},
	}
}

// RebuildFunc is called once a burst of changes has settled.
type RebuildFunc func(ctx context.Context) error

type Watcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	extensions []string
	log        *zap.Logger
}

func NewWatcher(cfg Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultConfig().Extensions
	}

	return &Watcher{
		watcher:    w,
		debounce:   cfg.Debounce,
		extensions: cfg.Extensions,
		log:        zap.L().With(zap.String("component", "watcher")),
	}, nil
}

// Add watches root and every directory below it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		return w.watcher.Add(path)
	})
}

// Run blocks until ctx is done, calling rebuild after matching files
// are created, written, removed or renamed.
func (w *Watcher) Run(ctx context.Context, rebuild RebuildFunc) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := w.Add(event.Name); err != nil {
					w.log.Warn("watch directory failed",
						zap.String("path", event.Name),
						zap.Error(err),
					)
				}

				continue
			}

			if !w.matches(event) {
				continue
			}

			w.log.Debug("change detected",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)

			timer.Reset(w.debounce)

		case <-timer.C:
			w.log.Info("rebuilding")

			if err := rebuild(ctx); err != nil {
				w.log.Error("rebuild failed", zap.Error(err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	return slices.Contains(w.extensions, ext)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
