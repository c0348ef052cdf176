package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/cache"
	"go.pilab.hu/wabroker/domain"
)

// SessionCache implements cache.SessionCache using Redis. Entries are
// JSON-encoded session records stored with SET ... EX, so every write
// refreshes the TTL.
type SessionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionCache creates a new [SessionCache] instance. A non-positive
// ttl falls back to cache.DefaultSessionTTL.
func NewSessionCache(client *redis.Client, prefix string, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = cache.DefaultSessionTTL
	}
	return &SessionCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for a given session ID.
func (r *SessionCache) redisKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sessionID)
}

// Set stores the session record under its ID with a refreshed expiry.
func (r *SessionCache) Set(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(session.ID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Get retrieves a session entry from Redis. A missing key, a Redis
// error, or an unparseable payload all count as a miss; the durable
// store is authoritative.
func (r *SessionCache) Get(ctx context.Context, sessionID string) (*domain.Session, bool) {
	payload, err := r.client.Get(ctx, r.redisKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("sessionID", sessionID).Msg("Redis read failed, falling back to durable store")
		}
		return nil, false
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Unparseable session entry in Redis, treating as miss")
		return nil, false
	}
	return &session, true
}

// Delete removes a session entry from Redis.
func (r *SessionCache) Delete(ctx context.Context, sessionID string) bool {
	deleted, err := r.client.Del(ctx, r.redisKey(sessionID)).Result()
	if err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to delete session entry from Redis")
		return false
	}
	return deleted > 0
}

// Close closes the underlying Redis connection.
func (r *SessionCache) Close() error {
	return r.client.Close()
}

var _ cache.SessionCache = (*SessionCache)(nil)
