package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallWithRetry_RetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3, RateLimitWaits: []time.Duration{0, 0}}
	calls := 0
	got, err := callWithRetry(context.Background(), policy, BackendOpenAI, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("429 Too Many Requests")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("callWithRetry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got=%q calls=%d", got, calls)
	}
}

func TestCallWithRetry_StopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 3}
	calls := 0
	_, err := callWithRetry(context.Background(), policy, BackendLocal, func(context.Context) (string, error) {
		calls++
		return "", errors.New("400 bad request")
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown) {
		t.Fatalf("unexpected classification: %v", err)
	}
}

func TestCallWithRetry_ReturnsProviderDownAfterLastAttempt(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{MaxAttempts: 2, ServerErrorWaits: []time.Duration{0}}
	_, err := callWithRetry(context.Background(), policy, BackendAnthropic, func(context.Context) (int, error) {
		return 0, errors.New("500 internal server error")
	})
	if !errors.Is(err, ErrProviderDown) {
		t.Fatalf("err=%v", err)
	}
}

func TestCallWithRetry_HonorsContextWhileWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, RateLimitWaits: []time.Duration{time.Hour}}
	_, err := callWithRetry(ctx, policy, BackendOpenAI, func(context.Context) (string, error) {
		cancel()
		return "", errors.New("rate limit reached")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
