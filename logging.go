package paperrag

import (
	"context"

	"go.uber.org/zap"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "paperrag"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Fetch(ctx context.Context, query string, limit int, path string) (*Document, error) {
	log := mw.log.With(
		zap.String("action", "fetch"),
		zap.String("query", query),
		zap.String("path", path),
	)

	doc, err := mw.next.Fetch(ctx, query, limit, path)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("paper fetched",
		zap.String("document_id", doc.ID),
		zap.String("file", doc.Path),
	)
	return doc, nil
}

func (mw *loggingMiddleware) Documents(ctx context.Context) ([]Document, error) {
	log := mw.log.With(
		zap.String("action", "documents"),
	)

	docs, err := mw.next.Documents(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("documents listed", zap.Int("count", len(docs)))
	return docs, nil
}

func (mw *loggingMiddleware) Document(ctx context.Context, id string) (*Document, error) {
	log := mw.log.With(
		zap.String("action", "document"),
		zap.String("document_id", id),
	)

	doc, err := mw.next.Document(ctx, id)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("document found", zap.String("path", doc.Path))
	return doc, nil
}

func (mw *loggingMiddleware) Index(ctx context.Context, path string, name string, overwrite bool) (*Index, error) {
	log := mw.log.With(
		zap.String("action", "index"),
		zap.String("path", path),
		zap.String("index", name),
		zap.Bool("overwrite", overwrite),
	)

	index, err := mw.next.Index(ctx, path, name, overwrite)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("index built",
		zap.String("index_id", index.ID),
		zap.Int("documents", index.Documents),
		zap.Int("pages", index.Pages),
		zap.Duration("elapsed", index.Elapsed.Duration()),
	)
	return index, nil
}

func (mw *loggingMiddleware) Indexes(ctx context.Context) ([]Index, error) {
	log := mw.log.With(
		zap.String("action", "indexes"),
	)

	indexes, err := mw.next.Indexes(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("indexes listed", zap.Int("count", len(indexes)))
	return indexes, nil
}

func (mw *loggingMiddleware) Search(ctx context.Context, query string, k int) ([]Page, error) {
	log := mw.log.With(
		zap.String("action", "search"),
		zap.String("query", query),
		zap.Int("k", k),
	)

	name, ok := ctx.Value(IndexName).(string)
	if ok {
		log = log.With(
			zap.String("index", name),
		)
	}

	pages, err := mw.next.Search(ctx, query, k)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("pages searched", zap.Int("count", len(pages)))
	return pages, nil
}

func (mw *loggingMiddleware) Generate(ctx context.Context, query string, pages []Page) (*GenerationResponse, error) {
	log := mw.log.With(
		zap.String("action", "generate"),
		zap.String("query", query),
		zap.Int("pages", len(pages)),
	)

	resp, err := mw.next.Generate(ctx, query, pages)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("response generated",
		zap.String("model", resp.Model),
		zap.Int("length", len(resp.Text)),
	)
	return resp, nil
}

func (mw *loggingMiddleware) Ask(ctx context.Context, query string, k int) (*Answer, error) {
	log := mw.log.With(
		zap.String("action", "ask"),
		zap.String("query", query),
		zap.Int("k", k),
	)

	answer, err := mw.next.Ask(ctx, query, k)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("question answered", zap.Int("pages", len(answer.Pages)))
	return answer, nil
}
