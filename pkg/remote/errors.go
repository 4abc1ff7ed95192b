package remote

import (
	"errors"
	"fmt"
)

// Terminal remote-access outcomes. These are never retried; callers match
// them with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")

	// Surfaced only after the retry budget is exhausted.
	ErrRateLimited       = errors.New("rate limited")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)

// APIError wraps a taxonomy sentinel with the resource involved and the
// API's human-readable explanation. The raw transport error never escapes.
type APIError struct {
	Kind     error
	Resource string
	Message  string
	Status   int
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v: %s", e.Resource, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Resource, e.Kind)
}

func (e *APIError) Unwrap() error { return e.Kind }
