package paperrag

import (
	"context"
	"errors"
)

// ProxyMiddleware replaces the wrapped service with remote endpoints.
func ProxyMiddleware(endpoints *EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints *EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return nil
}

func (mw *proxyMiddleware) Fetch(ctx context.Context, query string, limit int, path string) (*Document, error) {
	req := FetchRequest{
		Query: query,
		Limit: limit,
		Path:  path,
	}

	resp, err := mw.endpoints.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	doc, ok := resp.(*Document)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return doc, nil
}

func (mw *proxyMiddleware) Documents(ctx context.Context) ([]Document, error) {
	resp, err := mw.endpoints.ListDocuments(ctx, nil)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.([]Document)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return docs, nil
}

func (mw *proxyMiddleware) Document(ctx context.Context, id string) (*Document, error) {
	resp, err := mw.endpoints.GetDocument(ctx, DocumentRequest{ID: id})
	if err != nil {
		return nil, err
	}

	doc, ok := resp.(*Document)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return doc, nil
}

func (mw *proxyMiddleware) Index(ctx context.Context, path string, name string, overwrite bool) (*Index, error) {
	req := IndexRequest{
		Path:      path,
		Name:      name,
		Overwrite: overwrite,
	}

	resp, err := mw.endpoints.Index(ctx, req)
	if err != nil {
		return nil, err
	}

	index, ok := resp.(*Index)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return index, nil
}

func (mw *proxyMiddleware) Indexes(ctx context.Context) ([]Index, error) {
	resp, err := mw.endpoints.ListIndexes(ctx, nil)
	if err != nil {
		return nil, err
	}

	indexes, ok := resp.([]Index)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return indexes, nil
}

func (mw *proxyMiddleware) Search(ctx context.Context, query string, k int) ([]Page, error) {
	req := SearchRequest{
		Query: query,
		K:     k,
	}

	if name, ok := ctx.Value(IndexName).(string); ok {
		req.Index = name
	}

	resp, err := mw.endpoints.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	pages, ok := resp.([]Page)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return pages, nil
}

func (mw *proxyMiddleware) Generate(ctx context.Context, query string, pages []Page) (*GenerationResponse, error) {
	req := GenerateRequest{
		Query: query,
		Pages: pages,
	}

	resp, err := mw.endpoints.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*GenerationResponse)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}

func (mw *proxyMiddleware) Ask(ctx context.Context, query string, k int) (*Answer, error) {
	req := AskRequest{
		Query: query,
		K:     k,
	}

	if name, ok := ctx.Value(IndexName).(string); ok {
		req.Index = name
	}

	resp, err := mw.endpoints.Ask(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, ok := resp.(*Answer)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return answer, nil
}
