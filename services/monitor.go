package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
	"go.pilab.hu/wabroker/internal/metrics"
	"go.pilab.hu/wabroker/notify"
)

// Notifier pushes status events to subscribed client connections.
type Notifier interface {
	Publish(ctx context.Context, event notify.Event) error
}

// ScanMonitor watches a pending session's page for the QR challenge
// disappearing, which signals that the user scanned it from their
// phone. One monitor goroutine runs per QRCODE session.
type ScanMonitor struct {
	store     *SessionStore
	resources *ResourceManager
	notifier  Notifier

	interval       time.Duration
	maxPolls       int
	chatLimit      int
	dismissTimeout time.Duration
	scrapeTimeout  time.Duration
	notifyWindow   time.Duration
}

// NewScanMonitor creates a monitor factory with the given polling
// policy, shared by all per-session loops.
func NewScanMonitor(store *SessionStore, resources *ResourceManager, notifier Notifier, cfg Config) *ScanMonitor {
	return &ScanMonitor{
		store:          store,
		resources:      resources,
		notifier:       notifier,
		interval:       cfg.PollInterval,
		maxPolls:       cfg.PollAttempts,
		chatLimit:      cfg.ChatLimit,
		dismissTimeout: cfg.DismissTimeout,
		scrapeTimeout:  cfg.ScrapeTimeout,
		notifyWindow:   cfg.NotifyWindow(),
	}
}

// Watch polls the session's page until the challenge disappears, the
// poll budget elapses, the page dies, or cleanup clears the handle's
// liveness flag. It blocks and is meant to run as a detached goroutine;
// failures are logged, never propagated to any caller.
func (m *ScanMonitor) Watch(handle *AutomationHandle, session *domain.Session) {
	metrics.ActiveMonitorsGauge.Inc()
	defer metrics.ActiveMonitorsGauge.Dec()
	logger := log.With().Str("sessionID", session.ID).Logger()

	for poll := 0; poll < m.maxPolls; poll++ {
		time.Sleep(m.interval)

		if !handle.IsMonitoring() {
			logger.Debug().Msg("Monitor stopped cooperatively")
			return
		}
		if !handle.Page.Alive() {
			logger.Warn().Msg("Automation page became unusable, releasing handle")
			m.resources.Release(session.ID)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		present, err := handle.Page.HasChallenge(ctx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Challenge poll failed")
			if !handle.Page.Alive() {
				m.resources.Release(session.ID)
				return
			}
			continue
		}
		if present {
			continue
		}

		m.onScanDetected(handle, session, logger)
		return
	}

	// Clearing the flag lets a later refresh restart detection.
	handle.StopMonitoring()
	logger.Debug().Msg("Scan detection window elapsed, session stays in QRCODE until a refresh")
}

// onScanDetected advances the session to AUTHENTICATED, clears any
// post-authentication interstitial, scrapes the preview list, and hands
// the event to the dispatcher.
func (m *ScanMonitor) onScanDetected(handle *AutomationHandle, session *domain.Session, logger zerolog.Logger) {
	handle.StopMonitoring()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session.Status = domain.SessionStatusAuthenticated
	session.UpdatedAt = time.Now().UTC()
	if err := m.store.Write(ctx, session); err != nil {
		logger.Error().Err(err).Msg("Failed to persist AUTHENTICATED transition")
		return
	}
	metrics.SessionsAuthenticatedTotal.Inc()
	logger.Info().Msg("Scan detected, session authenticated")

	if handle.Page.DismissContinue(ctx, m.dismissTimeout) {
		logger.Debug().Msg("Dismissed post-authentication dialog")
	}

	chats, err := handle.Page.ChatPreviews(ctx, m.chatLimit, m.scrapeTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("Chat preview scrape failed, notifying without previews")
		chats = nil
	}

	notifyCtx, cancelNotify := context.WithTimeout(context.Background(), m.notifyWindow)
	defer cancelNotify()
	event := notify.Event{
		SessionID: session.ID,
		Status:    domain.SessionStatusAuthenticated,
		Message:   "Session authenticated",
		Chats:     chats,
	}
	if err := m.notifier.Publish(notifyCtx, event); err != nil {
		logger.Warn().Err(err).Msg("Status event not delivered within retry window")
	}
}
