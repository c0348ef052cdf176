package domain

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by repositories when no record matches.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines access to the durable session store.
type SessionRepository interface {
	// UpsertSession inserts the session or replaces the record with the
	// same ID.
	UpsertSession(ctx context.Context, session *Session) error
	// GetSessionByID retrieves a session, or ErrSessionNotFound.
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	// ListSessionsByUserAndStatus returns all sessions for a user in the
	// given status.
	ListSessionsByUserAndStatus(ctx context.Context, userID string, status SessionStatus) ([]*Session, error)
	// DeleteSession removes a session by ID. Deleting an unknown ID is
	// not an error.
	DeleteSession(ctx context.Context, id string) error
}
