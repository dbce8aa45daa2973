package model

import (
	"context"
	"errors"
	"strings"
)

// MapProviderError normalizes an SDK error into a *ProviderError.
//
// The official SDKs expose status codes inconsistently across versions, so
// classification falls back to message matching. Context cancellation is
// passed through unchanged so callers can distinguish it from provider
// faults.
func MapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{
			Code:      "timeout",
			Message:   provider + " request timed out",
			Retryable: true,
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api_key"),
		strings.Contains(msg, "api key"):
		return &ProviderError{
			Code:      "invalid_api_key",
			Message:   provider + " API key is invalid or expired",
			Retryable: false,
		}
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"):
		return &ProviderError{
			Code:      "rate_limited",
			Message:   provider + " rate limit exceeded",
			Retryable: true,
		}
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "billing"):
		return &ProviderError{
			Code:      "quota_exceeded",
			Message:   provider + " quota exceeded",
			Retryable: false,
		}
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline"):
		return &ProviderError{
			Code:      "timeout",
			Message:   provider + " request timed out",
			Retryable: true,
		}
	default:
		return &ProviderError{
			Code:      "api_error",
			Message:   provider + " API error: " + err.Error(),
			Retryable: false,
		}
	}
}
