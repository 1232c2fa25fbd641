package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/metrics"
)

// RetryPolicy waits between attempts after rate-limit and server errors.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second},
		ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func callWithRetry[T any](ctx context.Context, policy RetryPolicy, backend string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		err = mapError(backend, err)

		var waits []time.Duration
		reason := ""
		switch {
		case errors.Is(err, ErrRateLimit):
			waits, reason = policy.RateLimitWaits, "rate_limit"
		case errors.Is(err, ErrProviderDown):
			waits, reason = policy.ServerErrorWaits, "server_error"
		default:
			return zero, err
		}
		if attempt >= maxAttempts-1 {
			return zero, err
		}

		wait := waitAt(waits, attempt)
		metrics.CompletionRetriesTotal.WithLabelValues(backend, reason).Inc()
		logger.FromContext(ctx).Warn("retrying completion", "backend", backend, "reason", reason, "attempt", attempt+1, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("failed after %d attempts due to %s API issues", maxAttempts, backend)
}

func waitAt(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	if attempt >= len(waits) {
		return waits[len(waits)-1]
	}
	return waits[attempt]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
