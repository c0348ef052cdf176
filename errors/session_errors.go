package errors

import (
	stderrors "errors"
	"fmt"
)

// SessionError represents a typed failure surfaced by the session
// lifecycle core. It is JSON-serializable so the API layer can return
// it directly in response bodies.
type SessionError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Error codes for the session lifecycle taxonomy.
const (
	ResourceExhausted = "resource_exhausted"
	CaptureFailed     = "capture_failed"
	NotFound          = "not_found"
	Unauthorized      = "unauthorized"
	StoreInconsistent = "store_inconsistent"
)

func NewResourceExhausted(description string) *SessionError {
	return &SessionError{Code: ResourceExhausted, Description: description}
}

func NewCaptureFailed(description string) *SessionError {
	return &SessionError{Code: CaptureFailed, Description: description}
}

func NewNotFound(description string) *SessionError {
	return &SessionError{Code: NotFound, Description: description}
}

func NewUnauthorized(description string) *SessionError {
	return &SessionError{Code: Unauthorized, Description: description}
}

func NewStoreInconsistent(description string) *SessionError {
	return &SessionError{Code: StoreInconsistent, Description: description}
}

// IsCode reports whether err (or anything it wraps) is a SessionError
// carrying the given code.
func IsCode(err error, code string) bool {
	var se *SessionError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}
