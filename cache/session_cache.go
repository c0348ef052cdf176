// Package cache defines the fast-store abstraction for session
// records: a TTL-bounded key-value mirror of the durable store, used
// for low-latency status reads on the hot WebSocket path.
package cache

import (
	"context"
	"time"

	"go.pilab.hu/wabroker/domain"
)

// DefaultSessionTTL is the fast-store entry lifetime. Every write
// refreshes it.
const DefaultSessionTTL = time.Hour

// SessionCache stores ephemeral copies of session records. A miss is
// never an error: the durable store is authoritative and callers fall
// back to it.
type SessionCache interface {
	// Set writes the session under its ID, overwriting any existing
	// entry and resetting the TTL.
	Set(ctx context.Context, session *domain.Session) error
	// Get returns the cached session, or (nil, false) on a miss.
	Get(ctx context.Context, sessionID string) (*domain.Session, bool)
	// Delete removes the entry. Returns whether an entry was removed.
	Delete(ctx context.Context, sessionID string) bool
	// Close releases the underlying connection or cleanup goroutine.
	Close() error
}
