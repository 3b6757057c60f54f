package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/paperrag"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `paperrag answers questions about scientific papers from their page images.

Typical flow:
1. fetch_paper: download the best arXiv match for a topic
2. build_index: render and embed every page of the stored papers
3. search_pages: find the pages most relevant to a question
4. ask_paper: answer a question from the best matching page

list_indexes shows which indexes exist and which one is active.`

func InitializeEndpoint(svc paperrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "paperrag",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc paperrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{},
		}
	}
}

func ListToolsEndpoint(svc paperrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func CallToolEndpoint(svc paperrag.Service, defaultK int) MCPEndpoint {
	if defaultK <= 0 {
		defaultK = 2
	}

	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		handler, ok := toolHandlers[params.Name]
		if !ok {
			return errorResponse(req.ID, mcp.METHOD_NOT_FOUND, "tool not found: "+params.Name)
		}

		// tool failures are reported inside the result, not as protocol errors
		result, err := handler(ctx, svc, params.Arguments, defaultK)
		if err != nil {
			result = mcp.NewToolResultError(err.Error())
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

const (
	ToolFetchPaper  = "fetch_paper"
	ToolBuildIndex  = "build_index"
	ToolListIndexes = "list_indexes"
	ToolSearchPages = "search_pages"
	ToolAskPaper    = "ask_paper"
)

func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolFetchPaper,
			mcp.WithDescription("Download the best-ranked arXiv paper for a topic"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Topic or title to search arXiv for")),
			mcp.WithString("path", mcp.Description("Directory or .pdf file to write; defaults to the paper store")),
		),
		mcp.NewTool(ToolBuildIndex,
			mcp.WithDescription("Render and embed every page of the stored papers into a named index"),
			mcp.WithString("path", mcp.Description("Directory to index; defaults to the paper store")),
			mcp.WithString("name", mcp.Description("Index name")),
			mcp.WithBoolean("overwrite", mcp.Description("Replace an existing index with the same name")),
		),
		mcp.NewTool(ToolListIndexes,
			mcp.WithDescription("List the page indexes and mark the active one"),
		),
		mcp.NewTool(ToolSearchPages,
			mcp.WithDescription("Find the paper pages most relevant to a question"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question")),
			mcp.WithNumber("k", mcp.Description("Number of pages to return")),
			mcp.WithString("index", mcp.Description("Index to search; defaults to the active index")),
		),
		mcp.NewTool(ToolAskPaper,
			mcp.WithDescription("Answer a question from the best matching paper page"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question")),
			mcp.WithNumber("k", mcp.Description("Number of candidate pages to retrieve")),
			mcp.WithString("index", mcp.Description("Index to search; defaults to the active index")),
		),
	}
}

type toolHandler func(ctx context.Context, svc paperrag.Service, args any, defaultK int) (*mcp.CallToolResult, error)

var toolHandlers = map[string]toolHandler{
	ToolFetchPaper:  fetchPaper,
	ToolBuildIndex:  buildIndex,
	ToolListIndexes: listIndexes,
	ToolSearchPages: searchPages,
	ToolAskPaper:    askPaper,
}

// decodeArguments copies loosely typed tool arguments into v.
func decodeArguments(args any, v any) error {
	if args == nil {
		return nil
	}

	bs, err := json.Marshal(args)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(bs, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(bs)), nil
}

type queryArguments struct {
	Query string `json:"query"`
	K     int    `json:"k"`
	Index string `json:"index"`
}

func (args queryArguments) context(ctx context.Context) context.Context {
	if args.Index != "" {
		ctx = context.WithValue(ctx, paperrag.IndexName, args.Index)
	}

	return ctx
}

func fetchPaper(ctx context.Context, svc paperrag.Service, raw any, defaultK int) (*mcp.CallToolResult, error) {
	var args struct {
		Query string `json:"query"`
		Path  string `json:"path"`
	}

	if err := decodeArguments(raw, &args); err != nil {
		return nil, err
	}

	doc, err := svc.Fetch(ctx, args.Query, 1, args.Path)
	if err != nil {
		return nil, err
	}

	return jsonResult(doc)
}

func buildIndex(ctx context.Context, svc paperrag.Service, raw any, defaultK int) (*mcp.CallToolResult, error) {
	var args struct {
		Path      string `json:"path"`
		Name      string `json:"name"`
		Overwrite bool   `json:"overwrite"`
	}

	if err := decodeArguments(raw, &args); err != nil {
		return nil, err
	}

	index, err := svc.Index(ctx, args.Path, args.Name, args.Overwrite)
	if err != nil {
		return nil, err
	}

	return jsonResult(index)
}

func listIndexes(ctx context.Context, svc paperrag.Service, raw any, defaultK int) (*mcp.CallToolResult, error) {
	indexes, err := svc.Indexes(ctx)
	if err != nil {
		return nil, err
	}

	return jsonResult(indexes)
}

func searchPages(ctx context.Context, svc paperrag.Service, raw any, defaultK int) (*mcp.CallToolResult, error) {
	var args queryArguments
	if err := decodeArguments(raw, &args); err != nil {
		return nil, err
	}

	if args.K == 0 {
		args.K = defaultK
	}

	pages, err := svc.Search(args.context(ctx), args.Query, args.K)
	if err != nil {
		return nil, err
	}

	result := &mcp.CallToolResult{}
	for _, p := range pages {
		summary := fmt.Sprintf("%s page %d (score %.4f)", p.DocumentID, p.PageNumber, p.Score)
		result.Content = append(result.Content, mcp.NewTextContent(summary))

		if len(p.Image) > 0 {
			data := base64.StdEncoding.EncodeToString(p.Image)
			result.Content = append(result.Content, mcp.NewImageContent(data, "image/png"))
		}
	}

	return result, nil
}

func askPaper(ctx context.Context, svc paperrag.Service, raw any, defaultK int) (*mcp.CallToolResult, error) {
	var args queryArguments
	if err := decodeArguments(raw, &args); err != nil {
		return nil, err
	}

	if args.K == 0 {
		args.K = defaultK
	}

	answer, err := svc.Ask(args.context(ctx), args.Query, args.K)
	if err != nil {
		return nil, err
	}

	sources := make([]string, len(answer.Pages))
	for i, p := range answer.Pages {
		sources[i] = fmt.Sprintf("%s p.%d", p.DocumentID, p.PageNumber)
	}

	text := answer.Text
	if len(sources) > 0 {
		text += "\n\nSources: " + strings.Join(sources, ", ")
	}

	return mcp.NewToolResultText(text), nil
}
