package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/flarexio/paperrag"
)

type fakeRequest struct {
	subject string
	data    []byte
	headers micro.Headers
	reply   *nats.Msg
}

func (r *fakeRequest) Respond(data []byte, opts ...micro.RespondOpt) error {
	r.reply = nats.NewMsg(r.subject)
	r.reply.Data = data
	return nil
}

func (r *fakeRequest) RespondJSON(v any, opts ...micro.RespondOpt) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return r.Respond(data)
}

func (r *fakeRequest) Error(code, description string, data []byte, opts ...micro.RespondOpt) error {
	r.reply = nats.NewMsg(r.subject)
	r.reply.Header.Set(micro.ErrorCodeHeader, code)
	r.reply.Header.Set(micro.ErrorHeader, description)
	r.reply.Data = data
	return nil
}

func (r *fakeRequest) Data() []byte {
	return r.data
}

func (r *fakeRequest) Headers() micro.Headers {
	if r.headers == nil {
		return micro.Headers{}
	}

	return r.headers
}

func (r *fakeRequest) Subject() string {
	return r.subject
}

func (r *fakeRequest) Reply() string {
	return ""
}

// loopback delivers requests straight to the handlers of a micro group.
type loopback map[string]micro.HandlerFunc

func (l loopback) RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("context requires a deadline")
	}

	handler, ok := l[msg.Subject]
	if !ok {
		return nil, nats.ErrNoResponders
	}

	req := &fakeRequest{subject: msg.Subject, data: msg.Data, headers: micro.Headers(msg.Header)}
	handler(req)

	return req.reply, nil
}

type stubService struct {
	paperrag.Service

	indexed  bool
	index    string
	deadline time.Time
}

func (s *stubService) Fetch(ctx context.Context, query string, limit int, path string) (*paperrag.Document, error) {
	if query != "ColPali" {
		return nil, fmt.Errorf("%w: %s", paperrag.ErrPaperNotFound, query)
	}

	return &paperrag.Document{ID: "2407.01449v6", Title: "ColPali", Path: "/papers/2407.01449v6.pdf"}, nil
}

func (s *stubService) Documents(ctx context.Context) ([]paperrag.Document, error) {
	return []paperrag.Document{{ID: "2407.01449v6"}}, nil
}

func (s *stubService) Document(ctx context.Context, id string) (*paperrag.Document, error) {
	if id != "2407.01449v6" {
		return nil, fmt.Errorf("%w: %s", paperrag.ErrDocumentNotFound, id)
	}

	return &paperrag.Document{ID: id, Title: "ColPali", Path: "/papers/2407.01449v6.pdf"}, nil
}

func (s *stubService) Index(ctx context.Context, path string, name string, overwrite bool) (*paperrag.Index, error) {
	if s.indexed && !overwrite {
		return nil, fmt.Errorf("%w: %s", paperrag.ErrIndexAlreadyExists, name)
	}

	s.indexed = true
	return &paperrag.Index{Name: name, Documents: 1, Pages: 3, Active: true}, nil
}

func (s *stubService) Search(ctx context.Context, query string, k int) ([]paperrag.Page, error) {
	s.index, _ = ctx.Value(paperrag.IndexName).(string)
	s.deadline, _ = ctx.Deadline()

	if !s.indexed {
		return nil, paperrag.ErrNotIndexed
	}

	return []paperrag.Page{
		{DocumentID: "2407.01449v6", PageNumber: 2, Image: []byte("png"), Score: 0.9},
	}, nil
}

func (s *stubService) Ask(ctx context.Context, query string, k int) (*paperrag.Answer, error) {
	return nil, fmt.Errorf("%w: openai (status 502)", paperrag.ErrUpstream)
}

type natsTransportTestSuite struct {
	suite.Suite
	stub *stubService
	svc  paperrag.Service
}

func (suite *natsTransportTestSuite) SetupTest() {
	suite.stub = &stubService{}
	endpoints := paperrag.MakeEndpoints(suite.stub)

	conn := loopback{
		"papers.fetch":          FetchHandler(endpoints.Fetch),
		"papers.list_documents": ListDocumentsHandler(endpoints.ListDocuments),
		"papers.get_document":   GetDocumentHandler(endpoints.GetDocument),
		"papers.index":          IndexHandler(endpoints.Index),
		"papers.search":         SearchHandler(endpoints.Search),
		"papers.ask":            AskHandler(endpoints.Ask),
	}

	suite.svc = paperrag.ProxyMiddleware(MakeEndpoints(conn, "papers", time.Second))(nil)
}

func (suite *natsTransportTestSuite) TestFetch() {
	ctx := context.Background()

	doc, err := suite.svc.Fetch(ctx, "ColPali", 1, "")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("2407.01449v6", doc.ID)

	_, err = suite.svc.Fetch(ctx, "nothing", 1, "")
	suite.ErrorIs(err, paperrag.ErrPaperNotFound)
	suite.ErrorIs(err, paperrag.ErrFetch)
}

func (suite *natsTransportTestSuite) TestDocuments() {
	docs, err := suite.svc.Documents(context.Background())
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 1)
}

func (suite *natsTransportTestSuite) TestDocument() {
	doc, err := suite.svc.Document(context.Background(), "2407.01449v6")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("ColPali", doc.Title)

	_, err = suite.svc.Document(context.Background(), "missing")
	suite.ErrorIs(err, paperrag.ErrDocumentNotFound)
}

func (suite *natsTransportTestSuite) TestHandlerHonoursCallerDeadline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deadline, _ := ctx.Deadline()

	suite.stub.indexed = true

	_, err := suite.svc.Search(ctx, "table 2", 1)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.False(suite.stub.deadline.IsZero())
	suite.WithinDuration(deadline, suite.stub.deadline, 500*time.Millisecond)
	suite.True(suite.stub.deadline.Before(time.Now().Add(HandlerTimeout / 2)))
}

func (suite *natsTransportTestSuite) TestIndexAndSearch() {
	ctx := context.WithValue(context.Background(), paperrag.IndexName, "image_index")

	_, err := suite.svc.Search(ctx, "table 2", 2)
	suite.ErrorIs(err, paperrag.ErrNotIndexed)

	index, err := suite.svc.Index(ctx, "", "image_index", false)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal(3, index.Pages)

	_, err = suite.svc.Index(ctx, "", "image_index", false)
	suite.ErrorIs(err, paperrag.ErrIndexAlreadyExists)

	pages, err := suite.svc.Search(ctx, "table 2", 2)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("image_index", suite.stub.index)
	suite.Len(pages, 1)
	suite.Equal([]byte("png"), pages[0].Image)
}

func (suite *natsTransportTestSuite) TestUpstreamError() {
	_, err := suite.svc.Ask(context.Background(), "table 2", 2)
	suite.ErrorIs(err, paperrag.ErrUpstream)
	suite.Contains(err.Error(), "status 502")
}

func (suite *natsTransportTestSuite) TestNoResponders() {
	_, err := suite.svc.Generate(context.Background(), "table 2", nil)
	suite.ErrorIs(err, nats.ErrNoResponders)
}

func TestNATSTransportTestSuite(t *testing.T) {
	suite.Run(t, new(natsTransportTestSuite))
}

func TestHandlerBadRequest(t *testing.T) {
	assert := assert.New(t)

	endpoints := paperrag.MakeEndpoints(&stubService{})

	req := &fakeRequest{subject: "papers.fetch", data: []byte("{")}
	FetchHandler(endpoints.Fetch)(req)

	assert.Equal(CodeBadRequest, req.reply.Header.Get(micro.ErrorCodeHeader))

	err := Error(req.reply)
	assert.Error(err)
	assert.False(errors.Is(err, paperrag.ErrFetch))
}

func TestRequestContextTimeout(t *testing.T) {
	assert := assert.New(t)

	cases := map[string]time.Duration{
		"":         HandlerTimeout,
		"garbage":  HandlerTimeout,
		"-1s":      HandlerTimeout,
		"1s":       time.Second,
		"87600h0s": HandlerTimeout,
	}

	for raw, want := range cases {
		headers := micro.Headers{}
		if raw != "" {
			headers[TimeoutHeader] = []string{raw}
		}

		ctx, cancel := requestContext(&fakeRequest{headers: headers})

		deadline, ok := ctx.Deadline()
		cancel()

		if assert.True(ok, raw) {
			assert.WithinDuration(time.Now().Add(want), deadline, time.Second, raw)
		}
	}
}

func TestError(t *testing.T) {
	assert := assert.New(t)

	msg := nats.NewMsg("papers.search")
	assert.NoError(Error(msg))

	msg.Header.Set(micro.ErrorCodeHeader, CodeServiceError)
	msg.Header.Set(micro.ErrorHeader, "index not found: image_index")
	assert.ErrorIs(Error(msg), paperrag.ErrIndexNotFound)

	assert.Error(Error(nil))
}
