package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/paperrag"
)

func AddEndpoints(group micro.Group, endpoints *paperrag.EndpointSet) {
	group.AddEndpoint("fetch", FetchHandler(endpoints.Fetch))
	group.AddEndpoint("list_documents", ListDocumentsHandler(endpoints.ListDocuments))
	group.AddEndpoint("get_document", GetDocumentHandler(endpoints.GetDocument))
	group.AddEndpoint("index", IndexHandler(endpoints.Index))
	group.AddEndpoint("list_indexes", ListIndexesHandler(endpoints.ListIndexes))
	group.AddEndpoint("search", SearchHandler(endpoints.Search))
	group.AddEndpoint("generate", GenerateHandler(endpoints.Generate))
	group.AddEndpoint("ask", AskHandler(endpoints.Ask))
}
