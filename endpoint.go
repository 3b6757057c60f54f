package paperrag

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	Fetch         endpoint.Endpoint
	ListDocuments endpoint.Endpoint
	GetDocument   endpoint.Endpoint
	Index         endpoint.Endpoint
	ListIndexes   endpoint.Endpoint
	Search        endpoint.Endpoint
	Generate      endpoint.Endpoint
	Ask           endpoint.Endpoint
}

func MakeEndpoints(svc Service) *EndpointSet {
	return &EndpointSet{
		Fetch:         FetchEndpoint(svc),
		ListDocuments: ListDocumentsEndpoint(svc),
		GetDocument:   GetDocumentEndpoint(svc),
		Index:         IndexEndpoint(svc),
		ListIndexes:   ListIndexesEndpoint(svc),
		Search:        SearchEndpoint(svc),
		Generate:      GenerateEndpoint(svc),
		Ask:           AskEndpoint(svc),
	}
}

type FetchRequest struct {
	Query string `json:"query" form:"query" binding:"required"`
	Limit int    `json:"limit,omitempty" form:"limit"`
	Path  string `json:"path,omitempty" form:"path"`
}

func FetchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(FetchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Fetch(ctx, req.Query, req.Limit, req.Path)
	}
}

func ListDocumentsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Documents(ctx)
	}
}

type DocumentRequest struct {
	ID string `json:"id" uri:"id" binding:"required"`
}

func GetDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(DocumentRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Document(ctx, req.ID)
	}
}

type IndexRequest struct {
	Path      string `json:"path,omitempty" form:"path"`
	Name      string `json:"name,omitempty" form:"name"`
	Overwrite bool   `json:"overwrite,omitempty" form:"overwrite"`
}

func IndexEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(IndexRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Index(ctx, req.Path, req.Name, req.Overwrite)
	}
}

func ListIndexesEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Indexes(ctx)
	}
}

type SearchRequest struct {
	Query string `json:"query" form:"query" binding:"required"`
	K     int    `json:"k,omitempty" form:"k"`
	Index string `json:"index,omitempty" form:"index"`
}

func SearchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		if req.Index != "" {
			ctx = context.WithValue(ctx, IndexName, req.Index)
		}

		return svc.Search(ctx, req.Query, req.K)
	}
}

type GenerateRequest struct {
	Query string `json:"query" binding:"required"`
	Pages []Page `json:"pages"`
}

func GenerateEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(GenerateRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Generate(ctx, req.Query, req.Pages)
	}
}

type AskRequest struct {
	Query string `json:"query" form:"query" binding:"required"`
	K     int    `json:"k,omitempty" form:"k"`
	Index string `json:"index,omitempty" form:"index"`
}

func AskEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AskRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		if req.Index != "" {
			ctx = context.WithValue(ctx, IndexName, req.Index)
		}

		return svc.Ask(ctx, req.Query, req.K)
	}
}
