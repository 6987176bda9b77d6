package relay

import (
	"errors"
	"fmt"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// HTTPError represents a relay call the backend answered with an
// unexpected status
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d (URL: %s)", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap lets errors.Is(err, entities.ErrRelayFailed) match
func (e *HTTPError) Unwrap() error {
	return entities.ErrRelayFailed
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with
// the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
