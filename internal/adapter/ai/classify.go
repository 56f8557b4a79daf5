package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/arturoeanton/design-copilot/internal/port"
)

// classifyStatus maps a non-2xx provider response to the provider error taxonomy.
func classifyStatus(provider string, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s (%d): %w: %s", provider, status, port.ErrProviderRateLimited, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s (%d): %w: %s", provider, status, port.ErrProviderAuth, body)
	default:
		return fmt.Errorf("%s (%d): %w: %s", provider, status, port.ErrProviderUnavailable, body)
	}
}

// classifyTransport maps a failed round trip. Caller cancellation is passed through untouched.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, port.ErrProviderUnavailable, err)
}

// Retryable reports whether a provider error is worth retrying with backoff.
func Retryable(err error) bool {
	return errors.Is(err, port.ErrProviderRateLimited)
}
