package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/paperrag"
	"github.com/flarexio/paperrag/arxiv"
	"github.com/flarexio/paperrag/embedding"
	"github.com/flarexio/paperrag/llm"
	"github.com/flarexio/paperrag/pdf"
	"github.com/flarexio/paperrag/persistence/badger"
	"github.com/flarexio/paperrag/persistence/chromem"
)

func main() {
	cmd := &cli.Command{
		Name:  "paperrag",
		Usage: "Multimodal retrieval over scientific papers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the paperrag work directory",
			},
			&cli.StringFlag{
				Name:    "embedding-api-key",
				Usage:   "API key of the embedding service",
				Sources: cli.EnvVars("PAPERRAG_EMBEDDING_API_KEY", "EMBEDDING_API_KEY"),
			},
			&cli.StringFlag{
				Name:  "llm-api-key",
				Usage: "API key of the chat provider",
				Sources: cli.EnvVars(
					"PAPERRAG_LLM_API_KEY",
					"GROQ_API_KEY",
					"OPENAI_API_KEY",
					"ANTHROPIC_API_KEY",
					"GEMINI_API_KEY",
				),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			fetchCommand(),
			documentsCommand(),
			documentCommand(),
			indexCommand(),
			indexesCommand(),
			searchCommand(),
			askCommand(),
			runCommand(),
			watchCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func workPath(cmd *cli.Command) (string, error) {
	path := cmd.String("path")
	if path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".flarex", "paperrag"), nil
}

func loadConfig(path string) (paperrag.Config, error) {
	cfg := paperrag.DefaultConfig()

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	if f != nil {
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, err
		}
	}

	if !filepath.IsAbs(cfg.Path) {
		cfg.Path = filepath.Join(path, cfg.Path)
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Persistent = true
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	if cfg.Catalog.Enabled && !cfg.Catalog.InMemory && cfg.Catalog.Path == "" {
		cfg.Catalog.Path = filepath.Join(path, "catalog")
	}

	return cfg, cfg.Validate()
}

type app struct {
	cfg paperrag.Config
	svc paperrag.Service
	log *zap.Logger
}

func (a *app) Close() {
	a.svc.Close()
	a.log.Sync()
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	path, err := workPath(cmd)
	if err != nil {
		return nil, err
	}

	// Keys may live next to the config, the process env still wins.
	_ = godotenv.Load(filepath.Join(path, ".env"))

	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)

	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	cfg.Embedding.APIKey = cmd.String("embedding-api-key")
	cfg.LLM.APIKey = cmd.String("llm-api-key")

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}

	renderer, err := pdf.NewPoppler(cfg.Renderer)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	vector, err := chromem.NewChromemVectorDB(cfg.Vector)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	deps := paperrag.Dependencies{
		Papers:   arxiv.NewClientWithConfig(cfg.Arxiv),
		Renderer: renderer,
		Embedder: embedder,
		Vector:   vector,
		Provider: provider,
	}

	if cfg.Catalog.Enabled {
		catalog, err := badger.NewCatalog(cfg.Catalog)
		if err != nil {
			return nil, err
		}

		deps.Catalog = catalog
	}

	svc, err := paperrag.NewService(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	svc = paperrag.LoggingMiddleware(log)(svc)

	return &app{cfg, svc, log}, nil
}

// indexContext scopes a search to the --index flag. Without the flag a
// fresh process has no active index, so it falls back to indexer.name when
// that index exists.
func indexContext(ctx context.Context, cmd *cli.Command, a *app) (context.Context, error) {
	name, err := searchIndex(ctx, a.svc, cmd.String("index"), a.cfg.Indexer.Name)
	if err != nil {
		return nil, err
	}

	if name == "" {
		return ctx, nil
	}

	return context.WithValue(ctx, paperrag.IndexName, name), nil
}

func searchIndex(ctx context.Context, svc paperrag.Service, flag string, fallback string) (string, error) {
	if name := strings.TrimSpace(flag); name != "" {
		return name, nil
	}

	indexes, err := svc.Indexes(ctx)
	if err != nil {
		return "", err
	}

	for _, index := range indexes {
		if index.Active {
			return index.Name, nil
		}
	}

	for _, index := range indexes {
		if index.Name == fallback {
			return fallback, nil
		}
	}

	return "", nil
}

func waitSignal(log *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
}
