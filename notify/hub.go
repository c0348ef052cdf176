// Package notify delivers session status events to currently-connected
// client connections. Delivery is best-effort with a bounded retry for
// the client-reconnect race; it is not a durable queue, and clients are
// expected to re-derive current status over HTTP after reconnecting.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
	"go.pilab.hu/wabroker/internal/metrics"
	"go.pilab.hu/wabroker/internal/retry"
)

// Event is the status payload pushed to subscribed clients.
type Event struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	Message   string               `json:"message,omitempty"`
	Chats     []domain.ChatPreview `json:"chats,omitempty"`
}

// Conn is the minimal client connection surface the hub needs. A
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ErrNoSubscribers is returned by Publish when the retry budget expires
// with no connection subscribed.
var ErrNoSubscribers = errors.New("no subscribed connections")

// Hub tracks subscriptions per session and fans events out to them.
// It holds back-references only: connection lifecycle belongs to the
// transport layer, which must Unsubscribe on close. Writes to one
// connection are serialized through a per-connection lock, since
// websocket connections support at most one concurrent writer.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[Conn]struct{}
	writeLocks map[Conn]*sync.Mutex

	attempts int
	backoff  time.Duration
}

// NewHub creates a hub with the given delivery retry budget.
func NewHub(attempts int, backoff time.Duration) *Hub {
	return &Hub{
		subs:       make(map[string]map[Conn]struct{}),
		writeLocks: make(map[Conn]*sync.Mutex),
		attempts:   attempts,
		backoff:    backoff,
	}
}

// Subscribe registers a connection for a session's events. Multiple
// connections per session are supported, and one connection may follow
// multiple sessions.
func (h *Hub) Subscribe(sessionID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[Conn]struct{})
	}
	h.subs[sessionID][c] = struct{}{}
	if h.writeLocks[c] == nil {
		h.writeLocks[c] = &sync.Mutex{}
	}
	log.Debug().Str("sessionID", sessionID).Msg("Registered client connection for session")
}

// Unsubscribe removes a connection from every session it subscribes to
// and returns the IDs of the sessions left with no subscribers, so the
// transport layer can release their resources.
func (h *Hub) Unsubscribe(c Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var emptied []string
	for sessionID, conns := range h.subs {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.subs, sessionID)
				emptied = append(emptied, sessionID)
			}
		}
	}
	delete(h.writeLocks, c)
	return emptied
}

// writeLock returns the connection's write lock, or nil when the
// connection is no longer registered.
func (h *Hub) writeLock(c Conn) *sync.Mutex {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.writeLocks[c]
}

// HasSubscribers reports whether any connection is subscribed to the
// session.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID]) > 0
}

func (h *Hub) snapshot(sessionID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]Conn, 0, len(h.subs[sessionID]))
	for c := range h.subs[sessionID] {
		conns = append(conns, c)
	}
	return conns
}

// Publish delivers the event to all connections subscribed to the
// session. When none are connected yet it retries with fixed backoff,
// then drops the event.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	err := retry.Do(ctx, h.attempts, h.backoff, func() error {
		conns := h.snapshot(event.SessionID)
		if len(conns) == 0 {
			return ErrNoSubscribers
		}
		h.fanOut(event.SessionID, conns, event)
		return nil
	})
	if err != nil {
		metrics.NotificationsDroppedTotal.Inc()
		log.Warn().Err(err).Str("sessionID", event.SessionID).Msg("Dropping session event, no client connected within retry window")
		return err
	}
	return nil
}

// Send delivers an arbitrary payload to the session's connections once,
// without retry. Used by the webhook simulator's outgoing messages.
func (h *Hub) Send(sessionID string, payload interface{}) bool {
	conns := h.snapshot(sessionID)
	if len(conns) == 0 {
		return false
	}
	h.fanOut(sessionID, conns, payload)
	return true
}

func (h *Hub) fanOut(sessionID string, conns []Conn, payload interface{}) {
	for _, c := range conns {
		lock := h.writeLock(c)
		if lock == nil {
			// Unsubscribed between the snapshot and the write.
			continue
		}
		lock.Lock()
		err := c.WriteJSON(payload)
		lock.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("sessionID", sessionID).Msg("Write to client connection failed, dropping it")
			h.Unsubscribe(c)
			_ = c.Close()
			continue
		}
		metrics.NotificationsDeliveredTotal.Inc()
	}
}
