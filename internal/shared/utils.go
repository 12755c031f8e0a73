package shared

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
)

// Constants
const (
	DefaultMaxRetries = 5
	UserAgent         = "music-enricher/1.0"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Message)
}

// NewHTTPError builds an HTTPError from a response, truncating the body excerpt.
func NewHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    TruncateString(string(body), 200),
	}
}

// IsRetryableHTTPError checks if an HTTP error should trigger a cooldown and retry
func IsRetryableHTTPError(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusServiceUnavailable, // 503
		http.StatusTooManyRequests,     // 429
		http.StatusBadGateway,          // 502
		http.StatusGatewayTimeout,      // 504
		http.StatusInternalServerError: // 500
		return true
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// FileExists checks if a file exists at the given path
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// TruncateString truncates a string to the specified length, adding ellipsis if truncated.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// ParseEntityID parses a local entity id from user input.
func ParseEntityID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entity id %q", s)
	}
	return id, nil
}

func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}
