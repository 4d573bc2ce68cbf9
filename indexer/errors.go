package indexer

import (
	"errors"
	"fmt"
)

// ErrRequestFailed is matched by every transport-level failure (network,
// timeout, abort) through errors.Is.
var ErrRequestFailed = errors.New("request failed")

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRequestFailed) hold for any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrRequestFailed
}

// APIError is a non-OK HTTP status or a success=false envelope.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// ValidationError is returned before any network call when a required
// argument is missing or malformed.
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Msg)
}

// StatusCode extracts the HTTP status from an APIError anywhere in err's
// chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == 404
}
