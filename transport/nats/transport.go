package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/paperrag"
)

const (
	CodeBadRequest      = "400"
	CodeServiceError    = "417"
	CodeInternalFailure = "500"
)

// TimeoutHeader carries the time the caller is still willing to wait, as a
// duration relative to when the request was sent.
const TimeoutHeader = "Paperrag-Timeout"

// HandlerTimeout bounds the work a single request may trigger.
var HandlerTimeout = 10 * time.Minute

// requestContext bounds a handler by HandlerTimeout, or by the caller's
// remaining budget when that is shorter.
func requestContext(r micro.Request) (context.Context, context.CancelFunc) {
	timeout := HandlerTimeout

	if raw := r.Headers().Get(TimeoutHeader); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = min(timeout, d)
		}
	}

	return context.WithTimeout(context.Background(), timeout)
}

func handle[Req any](endpoint endpoint.Endpoint, decode bool) micro.HandlerFunc {
	return func(r micro.Request) {
		var req Req
		if decode {
			if err := json.Unmarshal(r.Data(), &req); err != nil {
				r.Error(CodeBadRequest, err.Error(), nil)
				return
			}
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		var request any = req
		if !decode {
			request = nil
		}

		resp, err := endpoint(ctx, request)
		if err != nil {
			r.Error(CodeServiceError, err.Error(), nil)
			return
		}

		if err := r.RespondJSON(resp); err != nil {
			r.Error(CodeInternalFailure, err.Error(), nil)
		}
	}
}

func FetchHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.FetchRequest](endpoint, true)
}

func ListDocumentsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[struct{}](endpoint, false)
}

func GetDocumentHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.DocumentRequest](endpoint, true)
}

func IndexHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.IndexRequest](endpoint, true)
}

func ListIndexesHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[struct{}](endpoint, false)
}

func SearchHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.SearchRequest](endpoint, true)
}

func GenerateHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.GenerateRequest](endpoint, true)
}

func AskHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return handle[paperrag.AskRequest](endpoint, true)
}
