package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type embeddingsRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsResponse struct {
	Object string          `json:"object"`
	Model  string          `json:"model"`
	Data   []embeddingData `json:"data"`
}

func TestEmbedImagesBatches(t *testing.T) {
	assert := assert.New(t)

	var (
		mu      sync.Mutex
		batches [][]string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/embeddings", r.URL.Path)

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		batches = append(batches, req.Input)
		mu.Unlock()

		assert.Equal("vidore/colpali", req.Model)
		assert.Equal("float", req.EncodingFormat)

		// answer in reverse order, the client must honour the index field
		resp := embeddingsResponse{Object: "list", Model: req.Model}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i])), float32(i)},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&resp)
	}))
	defer srv.Close()

	c, err := FromPretrained("vidore/colpali", srv.URL+"/v1", WithBatchSize(2))
	if err != nil {
		assert.Fail(err.Error())
		return
	}
	defer c.Close()

	images := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}

	vectors, err := c.EmbedImages(context.Background(), images)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Len(batches, 2)
	assert.Len(batches[0], 2)
	assert.Len(batches[1], 1)
	assert.True(strings.HasPrefix(batches[0][0], "data:image/png;base64,"))

	assert.Len(vectors, 3)
	assert.Equal(float32(0), vectors[0][1])
	assert.Equal(float32(1), vectors[1][1])
	assert.Equal(float32(0), vectors[2][1])
}

func TestEmbedQuery(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer key", r.Header.Get("Authorization"))
		assert.Equal("/embeddings", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object": "list", "data": [{"object": "embedding", "index": 0, "embedding": [0.5, 0.25]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Model:   "vidore/colpali",
		BaseURL: srv.URL,
		APIKey:  "key",
	})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	vector, err := c.EmbedQuery(context.Background(), "Describe the results of table 2")
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal([]float32{0.5, 0.25}, vector)
	assert.Equal("vidore/colpali", c.Model())
}

func TestEmbedFailure(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "model not loaded"}}`))
	}))
	defer srv.Close()

	c, err := FromPretrained("vidore/colpali", srv.URL)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	_, err = c.EmbedImages(context.Background(), [][]byte{[]byte("a")})
	assert.ErrorIs(err, ErrEmbedding)
	assert.Contains(err.Error(), "status 500")
}

func TestEmbedCountMismatch(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object": "list", "data": [{"object": "embedding", "index": 0, "embedding": [1]}]}`))
	}))
	defer srv.Close()

	c, err := FromPretrained("vidore/colpali", srv.URL, WithBatchSize(2))
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	_, err = c.EmbedImages(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	assert.ErrorIs(err, ErrDimensionsMismatch)
}

func TestFromPretrainedRequiresModel(t *testing.T) {
	_, err := FromPretrained("", "http://localhost")
	assert.ErrorIs(t, err, ErrEmbedding)
}
