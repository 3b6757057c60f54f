package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/paperrag"
)

// StatusCode maps a service error onto an HTTP status.
func StatusCode(err error) int {
	switch paperrag.Kind(err) {
	case paperrag.ErrInvalidK,
		paperrag.ErrInvalidQuery,
		paperrag.ErrInvalidIndexName,
		paperrag.ErrNoPages,
		paperrag.ErrNoDocuments:
		return http.StatusBadRequest

	case paperrag.ErrPaperNotFound,
		paperrag.ErrIndexNotFound,
		paperrag.ErrDocumentNotFound:
		return http.StatusNotFound

	case paperrag.ErrIndexAlreadyExists:
		return http.StatusConflict

	case paperrag.ErrNotIndexed,
		paperrag.ErrInvalidTransition:
		return http.StatusPreconditionFailed

	case paperrag.ErrFetch,
		paperrag.ErrUpstream,
		paperrag.ErrEmptyResponse:
		return http.StatusBadGateway

	case paperrag.ErrCancelled:
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, err error) {
	c.String(status, err.Error())
	c.Error(err)
	c.Abort()
}

func FetchHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.FetchRequest
		if err := c.ShouldBind(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func ListDocumentsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// GetDocumentHandler takes the id from a catch-all segment, old-style arXiv
// ids such as hep-th/9901001v1 contain a slash.
func GetDocumentHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.DocumentRequest
		if err := c.ShouldBindUri(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		req.ID = strings.TrimPrefix(req.ID, "/")
		if req.ID == "" {
			abort(c, http.StatusBadRequest, errors.New("document id is required"))
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func IndexHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.IndexRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBind(&req); err != nil {
				abort(c, http.StatusBadRequest, err)
				return
			}
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func ListIndexesHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func SearchHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func GenerateHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.GenerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func AskHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paperrag.AskRequest
		if err := c.ShouldBind(&req); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, StatusCode(err), err)
			return
		}

		answer, ok := resp.(*paperrag.Answer)
		if !ok {
			abort(c, http.StatusInternalServerError, errors.New("invalid response type"))
			return
		}

		c.JSON(http.StatusOK, answer)
	}
}
