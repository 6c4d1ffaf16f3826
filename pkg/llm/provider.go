package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
)

// Provider is a single-shot chat completion backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a non-streaming completion. System is sent the way each
// backend expects it; JSON asks the backend for a single JSON object.
type Request struct {
	System      string
	Messages    []Message
	JSON        bool
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Content string
	Model   string
}

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// shouldRetry retries network failures and retryable HTTP statuses.
func shouldRetry(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return clients.IsRetryableStatus(statusErr.StatusCode)
	}
	var permanent *permanentError
	return !errors.As(err, &permanent)
}

// permanentError marks local failures (encoding, bad URL) that no retry fixes.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}
