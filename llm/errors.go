package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstream indicates the chat model returned a failure.
	ErrUpstream = errors.New("upstream generation failed")

	// ErrEmptyResponse indicates the chat model returned no usable content.
	ErrEmptyResponse = errors.New("empty response from upstream")

	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrEmptyRequest        = errors.New("request has no messages")
)

// APIError is a failed call to a chat model. StatusCode is zero when no
// HTTP response was received.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", ErrUpstream, e.Provider, e.Err)
	}

	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("%s: %s (status %d): %s", ErrUpstream, e.Provider, e.StatusCode, msg)
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}

	return []error{ErrUpstream, e.Err}
}

// IsTransient reports whether a failed call is worth one more attempt:
// server errors and transport failures, never client errors or rate limits.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	if apiErr.StatusCode == 0 {
		return true
	}

	return apiErr.StatusCode >= 500
}

func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
