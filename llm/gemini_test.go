package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type geminiWireRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func newGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGemini(context.Background(), Config{
		Model:   "gemini-vision",
		BaseURL: srv.URL,
		APIKey:  "key",
	})
	if err != nil {
		t.Fatal(err)
	}

	return c
}

func TestGeminiChat(t *testing.T) {
	assert := assert.New(t)

	var (
		path string
		got  geminiWireRequest
	)

	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(http.MethodPost, r.Method)

		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "Table 2 "}, {"text": "reports nDCG@5."}]},
				"finishReason": "STOP"
			}]
		}`))
	})

	req := chatRequest()
	req.Messages = append([]Message{
		{Role: RoleSystem, Parts: []Part{TextPart("Answer from the pages.")}},
	}, req.Messages...)

	resp, err := c.Chat(context.Background(), req)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal("Table 2 reports nDCG@5.", resp.Text)
	assert.Equal("gemini-vision", resp.Model)
	assert.Equal("STOP", resp.FinishReason)

	assert.True(strings.HasSuffix(path, "models/gemini-vision:generateContent"), path)
	assert.Equal(300, got.GenerationConfig.MaxOutputTokens)

	if assert.NotNil(got.SystemInstruction) && assert.Len(got.SystemInstruction.Parts, 1) {
		assert.Equal("Answer from the pages.", got.SystemInstruction.Parts[0].Text)
	}

	if !assert.Len(got.Contents, 1) || !assert.Len(got.Contents[0].Parts, 2) {
		return
	}

	parts := got.Contents[0].Parts
	assert.Equal("user", got.Contents[0].Role)
	assert.Equal("Describe the results of table 2", parts[0].Text)
	assert.Equal("image/png", parts[1].InlineData.MimeType)
	assert.Equal(base64.StdEncoding.EncodeToString([]byte("fake-png")), parts[1].InlineData.Data)
}

func TestGeminiChatUpstreamError(t *testing.T) {
	assert := assert.New(t)

	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"code": 503, "message": "The model is overloaded.", "status": "UNAVAILABLE"}}`))
	})

	_, err := c.Chat(context.Background(), chatRequest())
	assert.ErrorIs(err, ErrUpstream)

	var apiErr *APIError
	if assert.True(errors.As(err, &apiErr)) {
		assert.Equal(http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal("The model is overloaded.", apiErr.Message)
	}
}

func TestGeminiChatNoCandidates(t *testing.T) {
	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	})

	_, err := c.Chat(context.Background(), chatRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
