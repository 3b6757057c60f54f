package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/paperrag"
)

// Requester is the part of *nats.Conn the client endpoints use.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

func MakeEndpoints(nc Requester, prefix string, timeout time.Duration) *paperrag.EndpointSet {
	if timeout <= 0 {
		timeout = HandlerTimeout
	}

	return &paperrag.EndpointSet{
		Fetch:         makeEndpoint[paperrag.FetchRequest, *paperrag.Document](nc, prefix+".fetch", timeout),
		ListDocuments: makeEndpoint[any, []paperrag.Document](nc, prefix+".list_documents", timeout),
		GetDocument:   makeEndpoint[paperrag.DocumentRequest, *paperrag.Document](nc, prefix+".get_document", timeout),
		Index:         makeEndpoint[paperrag.IndexRequest, *paperrag.Index](nc, prefix+".index", timeout),
		ListIndexes:   makeEndpoint[any, []paperrag.Index](nc, prefix+".list_indexes", timeout),
		Search:        makeEndpoint[paperrag.SearchRequest, []paperrag.Page](nc, prefix+".search", timeout),
		Generate:      makeEndpoint[paperrag.GenerateRequest, *paperrag.GenerationResponse](nc, prefix+".generate", timeout),
		Ask:           makeEndpoint[paperrag.AskRequest, *paperrag.Answer](nc, prefix+".ask", timeout),
	}
}

func makeEndpoint[Req any, Resp any](nc Requester, topic string, timeout time.Duration) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		msg := nats.NewMsg(topic)

		if request != nil {
			req, ok := request.(Req)
			if !ok {
				return nil, errors.New("invalid request")
			}

			data, err := json.Marshal(&req)
			if err != nil {
				return nil, err
			}

			msg.Data = data
		}

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		deadline, _ := ctx.Deadline()
		msg.Header.Set(TimeoutHeader, time.Until(deadline).String())

		reply, err := nc.RequestMsgWithContext(ctx, msg)
		if err != nil {
			return nil, err
		}

		if err := Error(reply); err != nil {
			return nil, err
		}

		var resp Resp
		if err := json.Unmarshal(reply.Data, &resp); err != nil {
			return nil, err
		}

		return resp, nil
	}
}

// Error extracts a service error from a micro reply. The description is
// parsed back into its sentinel so callers can still match it.
func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	if code != CodeServiceError {
		return errors.New(code + ":" + description)
	}

	return paperrag.ParseError(description)
}
