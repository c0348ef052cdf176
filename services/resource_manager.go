package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/browser"
	waerrors "go.pilab.hu/wabroker/errors"
	"go.pilab.hu/wabroker/internal/metrics"
	"go.pilab.hu/wabroker/internal/retry"
)

// AutomationHandle is the process-local resource controlling one page
// for one session. It is never persisted and never shared across
// concurrent callers: only the owning session's operations and its
// monitor drive it.
type AutomationHandle struct {
	SessionID string
	Page      browser.Page

	monitoring atomic.Bool
}

// StartMonitoring marks the handle as watched by a scan monitor.
func (h *AutomationHandle) StartMonitoring() { h.monitoring.Store(true) }

// StopMonitoring asks the monitor loop to stop on its next wake.
func (h *AutomationHandle) StopMonitoring() { h.monitoring.Store(false) }

// IsMonitoring is the cooperative liveness flag the monitor loop checks
// each iteration.
func (h *AutomationHandle) IsMonitoring() bool { return h.monitoring.Load() }

// ResourceManager owns the sessionID → AutomationHandle mapping. It
// guarantees at most one live handle per session and serializes
// acquisition per session ID so two concurrent callers never
// double-launch the underlying automation resource.
type ResourceManager struct {
	driver    browser.Driver
	targetURL string
	attempts  int
	backoff   time.Duration

	mu      sync.Mutex
	handles map[string]*AutomationHandle
	locks   map[string]*sync.Mutex
}

// NewResourceManager creates a resource manager launching pages against
// targetURL with the given bounded-retry policy.
func NewResourceManager(driver browser.Driver, targetURL string, attempts int, backoff time.Duration) *ResourceManager {
	return &ResourceManager{
		driver:    driver,
		targetURL: targetURL,
		attempts:  attempts,
		backoff:   backoff,
		handles:   make(map[string]*AutomationHandle),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-session acquisition lock, creating it on
// first use.
func (m *ResourceManager) lockFor(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

// Acquire returns the live handle for the session if one exists,
// otherwise launches a new automation resource with bounded retries. On
// exhaustion it returns ResourceExhausted and leaves no half-initialized
// resource behind.
func (m *ResourceManager) Acquire(ctx context.Context, sessionID string) (*AutomationHandle, error) {
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	handle, ok := m.handles[sessionID]
	m.mu.Unlock()
	if ok {
		if handle.Page.Alive() {
			return handle, nil
		}
		log.Warn().Str("sessionID", sessionID).Msg("Existing automation handle is dead, relaunching")
		m.release(sessionID)
	}

	var page browser.Page
	err := retry.Do(ctx, m.attempts, m.backoff, func() error {
		opened, openErr := m.driver.Open(ctx, m.targetURL)
		if openErr != nil {
			log.Warn().Err(openErr).Str("sessionID", sessionID).Msg("Automation launch attempt failed")
			return openErr
		}
		page = opened
		return nil
	})
	if err != nil {
		metrics.SessionLaunchFailuresTotal.Inc()
		return nil, waerrors.NewResourceExhausted(
			fmt.Sprintf("automation resource could not be acquired for session %s: %v", sessionID, err))
	}

	handle = &AutomationHandle{SessionID: sessionID, Page: page}
	m.mu.Lock()
	m.handles[sessionID] = handle
	m.mu.Unlock()
	return handle, nil
}

// Lookup returns the live handle for a session, if any.
func (m *ResourceManager) Lookup(sessionID string) (*AutomationHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.handles[sessionID]
	return handle, ok
}

// Release closes the session's page if one is open. Safe to call on an
// already-released or unknown ID.
func (m *ResourceManager) Release(sessionID string) {
	m.release(sessionID)
}

func (m *ResourceManager) release(sessionID string) {
	m.mu.Lock()
	handle, ok := m.handles[sessionID]
	delete(m.handles, sessionID)
	delete(m.locks, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}
	handle.StopMonitoring()
	if err := handle.Page.Close(); err != nil {
		log.Debug().Err(err).Str("sessionID", sessionID).Msg("Closing automation page failed")
	}
	log.Info().Str("sessionID", sessionID).Msg("Released automation handle")
}

// ReleaseAll releases every live handle. Used on shutdown drain.
func (m *ResourceManager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.release(id)
	}
}

// Shutdown releases all handles and tears down the browser.
func (m *ResourceManager) Shutdown() error {
	m.ReleaseAll()
	return m.driver.Close()
}
