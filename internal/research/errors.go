package research

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown or already resolved query id.
	ErrNotFound = errors.New("query ID not found")
	// ErrNoValidIndices is returned when no approved index is in range.
	ErrNoValidIndices = errors.New("no valid insight indices provided")
	// ErrEmptyQuery is returned when there is no question to ask.
	ErrEmptyQuery = errors.New("research query is required")
)

// ErrorKind classifies a research API failure for the retry policy.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindServer    ErrorKind = "server"
	KindTimeout   ErrorKind = "timeout"
	KindNetwork   ErrorKind = "network"
	KindClient    ErrorKind = "client"
)

// APIError is a classified research API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt can succeed.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout, KindNetwork:
		return true
	}
	return false
}

// isRetryable is the retry predicate for research calls: only classified
// transient failures are retried.
func isRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
