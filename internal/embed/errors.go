package embed

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey       = errors.New("embed: missing embedding API key")
	ErrVectorCountMismatch = errors.New("embed: vector count does not match input count")
	ErrNoViableChunkSize   = errors.New("embed: could not find a suitable chunk size")
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// APIError is a non-transient error response from the embedding provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding api status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// OverflowError reports a request larger than the provider accepts. Given
// is the provider's own count when it reported one, else the local estimate.
type OverflowError struct {
	Given int
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("token limit exceeded: %d tokens given, limit is %d", e.Given, e.Limit)
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
