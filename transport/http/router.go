package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/paperrag"

	mcpE "github.com/flarexio/paperrag/mcp"
)

func AddRouters(r *gin.Engine, endpoints *paperrag.EndpointSet) {
	api := r.Group("/api")
	{
		api.POST("/papers", FetchHandler(endpoints.Fetch))
		api.GET("/papers", ListDocumentsHandler(endpoints.ListDocuments))
		api.GET("/papers/*id", GetDocumentHandler(endpoints.GetDocument))
		api.POST("/indexes", IndexHandler(endpoints.Index))
		api.GET("/indexes", ListIndexesHandler(endpoints.ListIndexes))
		api.GET("/search", SearchHandler(endpoints.Search))
		api.POST("/generate", GenerateHandler(endpoints.Generate))
		api.POST("/ask", AskHandler(endpoints.Ask))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	r.POST("/mcp", MCPStreamableHandler(endpoints))
}
