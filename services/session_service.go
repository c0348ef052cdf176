package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
	waerrors "go.pilab.hu/wabroker/errors"
	"go.pilab.hu/wabroker/internal/metrics"
	"go.pilab.hu/wabroker/internal/retry"
)

// Config carries the lifecycle orchestration policy: retry budgets,
// polling cadence, and scrape bounds.
type Config struct {
	// TargetURL is the messaging web client the automation drives.
	TargetURL string

	// Automation launch retry policy (session creation).
	LaunchAttempts int
	LaunchBackoff  time.Duration

	// QR artifact extraction retry policy, shared by create and refresh.
	CaptureAttempts int
	CaptureBackoff  time.Duration
	CaptureTimeout  time.Duration

	// Scan-detection polling policy.
	PollInterval time.Duration
	PollAttempts int

	// Chat preview scrape bounds.
	ChatLimit      int
	ScrapeTimeout  time.Duration
	DismissTimeout time.Duration
	PreviewTTL     time.Duration

	// Client event delivery retry policy.
	NotifyAttempts int
	NotifyBackoff  time.Duration
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		TargetURL:       "https://web.whatsapp.com",
		LaunchAttempts:  5,
		LaunchBackoff:   2 * time.Second,
		CaptureAttempts: 3,
		CaptureBackoff:  2 * time.Second,
		CaptureTimeout:  30 * time.Second,
		PollInterval:    5 * time.Second,
		PollAttempts:    12,
		ChatLimit:       10,
		ScrapeTimeout:   10 * time.Second,
		DismissTimeout:  3 * time.Second,
		PreviewTTL:      30 * time.Second,
		NotifyAttempts:  5,
		NotifyBackoff:   time.Second,
	}
}

// NotifyWindow is the total time the dispatcher may spend retrying one
// event, with slack for the final attempt's write.
func (c Config) NotifyWindow() time.Duration {
	return time.Duration(c.NotifyAttempts)*c.NotifyBackoff + 5*time.Second
}

// QRResult is the successful outcome of Create and Refresh. The session
// ID is authoritative: a refresh may mint a new identity.
type QRResult struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
}

// InspectResult is the canonical record plus, for authenticated
// sessions, a best-effort preview of recent conversations.
type InspectResult struct {
	Session *domain.Session      `json:"session"`
	Chats   []domain.ChatPreview `json:"chats"`
}

// SessionService drives a session through QRCODE → AUTHENTICATED →
// termination, coordinating the resource manager, the dual-store
// consistency manager, and the scan monitor.
type SessionService struct {
	cfg       Config
	store     *SessionStore
	resources *ResourceManager
	monitor   *ScanMonitor

	previews  *ttlcache.Cache[string, []domain.ChatPreview]
	userLocks sync.Map // userID → *sync.Mutex
}

// NewSessionService creates the lifecycle orchestrator.
func NewSessionService(cfg Config, store *SessionStore, resources *ResourceManager, monitor *ScanMonitor) *SessionService {
	previews := ttlcache.New(
		ttlcache.WithTTL[string, []domain.ChatPreview](cfg.PreviewTTL),
		ttlcache.WithDisableTouchOnHit[string, []domain.ChatPreview](),
	)
	go previews.Start()

	return &SessionService{
		cfg:       cfg,
		store:     store,
		resources: resources,
		monitor:   monitor,
		previews:  previews,
	}
}

// userLock serializes cross-session operations per user, so two
// concurrent Create calls for the same user cannot both pass the
// no-existing-QRCODE-session sweep.
func (s *SessionService) userLock(userID string) *sync.Mutex {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Create starts a new login flow for the user: it sweeps any existing
// QRCODE sessions (at most one QRCODE session per user may exist),
// acquires an automation handle with bounded retries, extracts the QR
// artifact, persists the QRCODE record to both stores, and starts the
// scan monitor. On any failure no partial record is left behind.
func (s *SessionService) Create(ctx context.Context, userID string) (*QRResult, error) {
	if userID == "" {
		return nil, waerrors.NewUnauthorized("no user ID provided")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := s.store.DeleteAllFor(ctx, userID, domain.SessionStatusQRCode)
	if err != nil {
		return nil, err
	}
	for _, old := range prior {
		s.resources.Release(old.ID)
		s.previews.Delete(old.ID)
		log.Info().Str("sessionID", old.ID).Str("userID", userID).
			Msg("Deleted existing QRCODE session before creating a new one")
	}

	sessionID := uuid.NewString()
	handle, err := s.resources.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	qrCode, err := s.captureQR(ctx, handle)
	if err != nil {
		s.resources.Release(sessionID)
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:        sessionID,
		UserID:    userID,
		Status:    domain.SessionStatusQRCode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Write(ctx, session); err != nil {
		s.resources.Release(sessionID)
		return nil, err
	}

	metrics.SessionsCreatedTotal.Inc()
	log.Info().Str("sessionID", sessionID).Str("userID", userID).Msg("Created session, QR issued")
	s.startMonitor(handle, session)
	return &QRResult{SessionID: sessionID, QRCode: qrCode}, nil
}

// Refresh re-issues a QR artifact. With a live handle the page is
// reloaded in place; without one the canonical record must still exist,
// and the session is recreated under a NEW identity. Callers must
// treat the returned session ID as authoritative.
func (s *SessionService) Refresh(ctx context.Context, sessionID, userID string) (*QRResult, error) {
	if userID == "" {
		return nil, waerrors.NewUnauthorized("no user ID provided")
	}
	if sessionID == "" {
		return nil, waerrors.NewNotFound("no session ID provided")
	}

	if handle, ok := s.resources.Lookup(sessionID); ok && handle.Page.Alive() {
		return s.refreshInPlace(ctx, handle, sessionID, userID)
	}

	old, err := s.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if old.UserID != userID {
		return nil, waerrors.NewUnauthorized("session does not belong to caller")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// The dead session's record is superseded by the new identity. A
	// dead handle may still be registered under the old ID; release it
	// so the manager's maps do not keep the stale entry.
	s.resources.Release(sessionID)
	if err := s.store.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to remove superseded session record")
	}
	s.previews.Delete(sessionID)

	newID := uuid.NewString()
	handle, err := s.resources.Acquire(ctx, newID)
	if err != nil {
		return nil, err
	}
	qrCode, err := s.captureQR(ctx, handle)
	if err != nil {
		s.resources.Release(newID)
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:        newID,
		UserID:    userID,
		Status:    domain.SessionStatusQRCode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Write(ctx, session); err != nil {
		s.resources.Release(newID)
		return nil, err
	}

	log.Info().Str("sessionID", newID).Str("supersedes", sessionID).Str("userID", userID).
		Msg("Recreated session under new identity")
	s.startMonitor(handle, session)
	return &QRResult{SessionID: newID, QRCode: qrCode}, nil
}

func (s *SessionService) refreshInPlace(ctx context.Context, handle *AutomationHandle, sessionID, userID string) (*QRResult, error) {
	session, err := s.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, waerrors.NewUnauthorized("session does not belong to caller")
	}

	if err := handle.Page.Reload(ctx); err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Page reload failed during refresh")
	}
	qrCode, err := s.captureQR(ctx, handle)
	if err != nil {
		s.resources.Release(sessionID)
		return nil, err
	}

	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Write(ctx, session); err != nil {
		return nil, err
	}

	// A refresh restarts scan detection when the previous window elapsed.
	if session.Status == domain.SessionStatusQRCode && !handle.IsMonitoring() {
		s.startMonitor(handle, session)
	}
	log.Info().Str("sessionID", sessionID).Msg("Refreshed QR artifact in place")
	return &QRResult{SessionID: sessionID, QRCode: qrCode}, nil
}

// Inspect returns the canonical record plus, only for AUTHENTICATED
// sessions, a freshly scraped preview list. Preview scraping is
// best-effort: failure degrades to an empty list, never to an error.
func (s *SessionService) Inspect(ctx context.Context, sessionID, userID string) (*InspectResult, error) {
	if userID == "" {
		return nil, waerrors.NewUnauthorized("no user ID provided")
	}

	session, err := s.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, waerrors.NewUnauthorized("session does not belong to caller")
	}

	var chats []domain.ChatPreview
	if session.Status == domain.SessionStatusAuthenticated {
		chats = s.chatPreviews(ctx, sessionID)
	}
	return &InspectResult{Session: session, Chats: chats}, nil
}

// chatPreviews serves cached previews when fresh enough, otherwise
// scrapes through the live handle. No live handle means no previews.
func (s *SessionService) chatPreviews(ctx context.Context, sessionID string) []domain.ChatPreview {
	if item := s.previews.Get(sessionID); item != nil {
		return item.Value()
	}

	handle, ok := s.resources.Lookup(sessionID)
	if !ok || !handle.Page.Alive() {
		return nil
	}
	chats, err := handle.Page.ChatPreviews(ctx, s.cfg.ChatLimit, s.cfg.ScrapeTimeout)
	if err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Chat preview scrape failed, returning empty list")
		return nil
	}
	s.previews.Set(sessionID, chats, ttlcache.DefaultTTL)
	return chats
}

// Exists reports whether the session is known to either store.
func (s *SessionService) Exists(ctx context.Context, sessionID string) bool {
	_, err := s.store.Read(ctx, sessionID)
	return err == nil
}

// Cleanup stops monitoring, closes any live automation handle, and
// removes the fast-store entry. The durable record stays (durable
// removal happens eagerly only when a new Create sweeps it). Idempotent:
// a second call is a no-op, not an error.
func (s *SessionService) Cleanup(ctx context.Context, sessionID string) {
	s.resources.Release(sessionID)
	s.store.DeleteCacheEntry(ctx, sessionID)
	s.previews.Delete(sessionID)
	log.Debug().Str("sessionID", sessionID).Msg("Session cleaned up")
}

// Shutdown drains all live automation handles and stops background
// caches. Called before the stores are closed.
func (s *SessionService) Shutdown() error {
	s.previews.Stop()
	return s.resources.Shutdown()
}

// startMonitor flags the handle as watched and detaches the
// scan-detection loop for it.
func (s *SessionService) startMonitor(handle *AutomationHandle, session *domain.Session) {
	handle.StartMonitoring()
	go s.monitor.Watch(handle, session)
}

// captureQR extracts the QR artifact with the configured bounded retry.
// Exhaustion surfaces CaptureFailed; the caller releases the handle.
func (s *SessionService) captureQR(ctx context.Context, handle *AutomationHandle) (string, error) {
	var qrCode string
	err := retry.Do(ctx, s.cfg.CaptureAttempts, s.cfg.CaptureBackoff, func() error {
		data, capErr := handle.Page.CaptureChallenge(ctx, s.cfg.CaptureTimeout)
		if capErr != nil {
			log.Warn().Err(capErr).Str("sessionID", handle.SessionID).Msg("QR capture attempt failed")
			return capErr
		}
		qrCode = data
		return nil
	})
	if err != nil {
		metrics.CaptureFailuresTotal.Inc()
		return "", waerrors.NewCaptureFailed(
			fmt.Sprintf("QR artifact extraction failed for session %s: %v", handle.SessionID, err))
	}
	return qrCode, nil
}
