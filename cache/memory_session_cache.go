package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/wabroker/domain"
)

// MemorySessionCache implements SessionCache using ttlcache. It is used
// in tests and for single-process deployments without Redis.
type MemorySessionCache struct {
	cache *ttlcache.Cache[string, *domain.Session]
	ttl   time.Duration
}

// NewMemorySessionCache creates an in-memory session cache with
// automatic expiry. A non-positive ttl falls back to DefaultSessionTTL.
//
//nolint:ireturn
func NewMemorySessionCache(ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Session](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.Session](),
	)

	go cache.Start()

	return &MemorySessionCache{cache: cache, ttl: ttl}
}

// Set implements SessionCache.Set.
func (s *MemorySessionCache) Set(_ context.Context, session *domain.Session) error {
	s.cache.Set(session.ID, session, s.ttl)
	return nil
}

// Get implements SessionCache.Get.
func (s *MemorySessionCache) Get(_ context.Context, sessionID string) (*domain.Session, bool) {
	item := s.cache.Get(sessionID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete implements SessionCache.Delete.
func (s *MemorySessionCache) Delete(_ context.Context, sessionID string) bool {
	if s.cache.Get(sessionID) == nil {
		return false
	}
	s.cache.Delete(sessionID)
	return true
}

// Close stops the cleanup goroutine.
func (s *MemorySessionCache) Close() error {
	s.cache.Stop()
	return nil
}
