package provider

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jmelis/sotto/internal/registry"
)

// RetryProvider wraps a Provider with exponential backoff for transient
// failures. Cancellation still wins: backoff sleeps select on ctx.
type RetryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
}

func WithRetry(p Provider, maxAttempts int) *RetryProvider {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryProvider{inner: p, maxAttempts: maxAttempts, baseDelay: 500 * time.Millisecond}
}

func (r *RetryProvider) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		resp, err := r.inner.SendChat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == r.maxAttempts-1 {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (r *RetryProvider) ListModels(ctx context.Context, profile registry.Profile) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		models, err := r.inner.ListModels(ctx, profile)
		if err == nil {
			return models, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == r.maxAttempts-1 {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// isRetryable: transport failures and throttling/overload statuses. Client
// mistakes (bad key, unknown model, malformed body) are not retried.
func isRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		switch protoErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
	}
	return false
}

func (r *RetryProvider) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
