package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

// RetryPolicy describes bounded retry for one external call site.
// MaxAttempts counts the first try, so 3 means one call plus two retries.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// ShouldRetry classifies a failure. Nil retries every non-context error.
	ShouldRetry func(err error) bool

	// Breaker, when set, wraps the whole retried call.
	Breaker *CircuitBreaker

	Logger logging.Logger
}

// DefaultRetryPolicy returns sensible defaults for HTTP collaborators.
func DefaultRetryPolicy(name string) RetryPolicy {
	return RetryPolicy{
		Name:        name,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Name == "" {
		p.Name = "external-call"
	}
	return p
}

// retryable never retries once the caller's context is done.
func (p RetryPolicy) retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

// Retry runs op under p. Non-retryable failures return immediately; once
// attempts are exhausted the last failure is returned as-is, so callers can
// still inspect it with errors.As.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	builder := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool { return p.retryable(ctx, err) }).
		WithBackoff(p.BaseDelay, p.MaxDelay).
		WithMaxRetries(p.MaxAttempts - 1).
		ReturnLastFailure()
	if p.Jitter {
		builder = builder.WithJitterFactor(0.1)
	}
	policy := builder.Build()

	attempt := 0
	call := func() (T, error) {
		attempt++
		result, err := op(ctx)
		if err != nil && p.Logger != nil {
			p.Logger.WithFields(logging.Fields{
				"call":         p.Name,
				"attempt":      attempt,
				"max_attempts": p.MaxAttempts,
				"retryable":    p.retryable(ctx, err),
			}).WithError(err).Warn("External call attempt failed")
		}
		return result, err
	}

	if p.Breaker == nil {
		return failsafe.With(policy).WithContext(ctx).Get(call)
	}

	var out T
	err := p.Breaker.Call(func() error {
		var innerErr error
		out, innerErr = failsafe.With(policy).WithContext(ctx).Get(call)
		return innerErr
	})
	return out, err
}

// IsRetryableStatus reports whether an HTTP status is worth another attempt:
// rate limits and server errors.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
