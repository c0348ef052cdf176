package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/cache"
	"go.pilab.hu/wabroker/domain"
	waerrors "go.pilab.hu/wabroker/errors"
)

// SessionStore keeps the durable MongoDB record and the TTL-bounded
// Redis entry converged on every state transition. There is no
// two-phase commit across the two stores: partial failures are logged
// and reconciled on the next read, with the durable store authoritative.
type SessionStore struct {
	repo  domain.SessionRepository
	cache cache.SessionCache
}

// NewSessionStore creates a dual-store consistency manager.
func NewSessionStore(repo domain.SessionRepository, sessionCache cache.SessionCache) *SessionStore {
	return &SessionStore{repo: repo, cache: sessionCache}
}

// Write upserts the durable record and mirrors it into the fast store
// with a refreshed expiry. A durable failure fails the write; a
// fast-store failure is logged only, since the next read falls back to
// the durable record.
func (s *SessionStore) Write(ctx context.Context, session *domain.Session) error {
	if err := s.repo.UpsertSession(ctx, session); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, session); err != nil {
		log.Warn().Err(err).
			Str("sessionID", session.ID).
			Str("code", waerrors.StoreInconsistent).
			Msg("Fast-store mirror write failed, durable store remains authoritative")
	}
	return nil
}

// Read prefers the fast store; on a miss (expired entry, process
// restart) it falls back to the durable record and repopulates the
// mirror. A miss in both stores is NotFound.
func (s *SessionStore) Read(ctx context.Context, sessionID string) (*domain.Session, error) {
	if session, ok := s.cache.Get(ctx, sessionID); ok {
		return session, nil
	}

	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, waerrors.NewNotFound("session " + sessionID + " not found")
		}
		return nil, err
	}

	if err := s.cache.Set(ctx, session); err != nil {
		log.Debug().Err(err).Str("sessionID", sessionID).Msg("Failed to repopulate fast store after durable fallback")
	}
	return session, nil
}

// Delete removes the session from both stores.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.cache.Delete(ctx, sessionID)
	return s.repo.DeleteSession(ctx, sessionID)
}

// DeleteCacheEntry removes only the fast-store entry. The durable
// record stays; removing it is the caller's policy decision.
func (s *SessionStore) DeleteCacheEntry(ctx context.Context, sessionID string) {
	s.cache.Delete(ctx, sessionID)
}

// DeleteAllFor removes every session for the user in the given status
// from both stores in one logical operation, best-effort: a failure on
// one record is logged and does not stop the sweep. Returns the
// sessions that were found so the caller can release their automation
// handles.
func (s *SessionStore) DeleteAllFor(ctx context.Context, userID string, status domain.SessionStatus) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessionsByUserAndStatus(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		s.cache.Delete(ctx, session.ID)
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			log.Error().Err(err).
				Str("sessionID", session.ID).
				Str("userID", userID).
				Str("code", waerrors.StoreInconsistent).
				Msg("Durable delete failed during session sweep, relying on later reconciliation")
		}
	}
	return sessions, nil
}
