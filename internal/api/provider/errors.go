package provider

import (
	"errors"
	"fmt"

	"music-enricher/internal/shared"
)

var (
	// ErrNotFound means the provider had no usable match.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited means the provider signalled throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrSchemaMismatch means the response did not have the expected shape.
	ErrSchemaMismatch = errors.New("unexpected response shape")
	// ErrFatal means the request cannot succeed, e.g. required local metadata is missing.
	ErrFatal = errors.New("fatal provider error")
)

// MissingMetadata reports a missing local field a provider needs to search with.
func MissingMetadata(field string) error {
	return fmt.Errorf("%w: missing %s", ErrFatal, field)
}

// SchemaError wraps a decode failure as ErrSchemaMismatch.
func SchemaError(err error) error {
	return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
}

// RateLimitError wraps a provider-specific throttling code.
func RateLimitError(provider string, code int, message string) error {
	return fmt.Errorf("%s: %w (code %d): %s", provider, ErrRateLimited, code, message)
}

// IsThrottle reports whether err should put the provider's queue into cooldown.
func IsThrottle(err error) bool {
	return errors.Is(err, ErrRateLimited) || shared.IsRetryableHTTPError(err)
}

// Class names the error taxonomy bucket for logs and metrics.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case IsThrottle(err):
		if errors.Is(err, ErrRateLimited) || shared.StatusCode(err) == 429 {
			return "rate_limited"
		}
		return "transient"
	default:
		return "transient"
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrFatal)
}
