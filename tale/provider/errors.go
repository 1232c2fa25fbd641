package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// mapError converts an SDK error into ErrRateLimit or ErrProviderDown when it is retryable.
// Context errors and other failures are returned unchanged.
func mapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var oaErr *openai.Error
	var anErr *sdkanthropic.Error
	switch {
	case errors.As(err, &oaErr):
		status = oaErr.StatusCode
	case errors.As(err, &anErr):
		status = anErr.StatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %v", ErrRateLimit, backend, err)
	case status == 529, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: %v", ErrProviderDown, backend, err)
	case status != 0:
		return fmt.Errorf("%s error (HTTP %d): %w", backend, status, err)
	case isRateLimitError(err):
		return fmt.Errorf("%w: %s: %v", ErrRateLimit, backend, err)
	case isServerError(err):
		return fmt.Errorf("%w: %s: %v", ErrProviderDown, backend, err)
	default:
		return fmt.Errorf("%s: %w", backend, err)
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error") ||
		strings.Contains(errStr, "overloaded")
}
