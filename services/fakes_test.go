package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.pilab.hu/wabroker/browser"
	"go.pilab.hu/wabroker/domain"
	"go.pilab.hu/wabroker/notify"
)

var errAutomationDown = errors.New("automation endpoint unavailable")

// fakeSessionRepo is an in-memory domain.SessionRepository with
// injectable failures.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	upsertErr error
	getErr    error
	listErr   error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) UpsertSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetSessionByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) ListSessionsByUserAndStatus(_ context.Context, userID string, status domain.SessionStatus) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Session
	for _, session := range r.sessions {
		if session.UserID == userID && session.Status == status {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *fakeSessionRepo) stored(sessionID string) (*domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	return session, ok
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// fakePage is a scriptable browser.Page.
type fakePage struct {
	mu      sync.Mutex
	dead    bool
	closed  bool
	reloads int
	scrapes int

	challengeFn func() (bool, error)
	captureFn   func() (string, error)
	chats       []domain.ChatPreview
	chatsErr    error
}

func newFakePage() *fakePage {
	return &fakePage{
		challengeFn: func() (bool, error) { return true, nil },
		captureFn:   func() (string, error) { return "data:image/png;base64,qr", nil },
	}
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.dead = true
	return nil
}

func (p *fakePage) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead
}

func (p *fakePage) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead = true
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) HasChallenge(context.Context) (bool, error) {
	p.mu.Lock()
	fn := p.challengeFn
	p.mu.Unlock()
	return fn()
}

func (p *fakePage) setChallenge(fn func() (bool, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challengeFn = fn
}

func (p *fakePage) CaptureChallenge(context.Context, time.Duration) (string, error) {
	p.mu.Lock()
	fn := p.captureFn
	p.mu.Unlock()
	return fn()
}

func (p *fakePage) DismissContinue(context.Context, time.Duration) bool { return false }

func (p *fakePage) ChatPreviews(context.Context, int, time.Duration) ([]domain.ChatPreview, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrapes++
	if p.chatsErr != nil {
		return nil, p.chatsErr
	}
	return p.chats, nil
}

// fakeDriver hands out fakePages and counts launch attempts.
type fakeDriver struct {
	mu           sync.Mutex
	opens        int
	failures     int // first N Open calls fail
	captureFails bool
	pages        []*fakePage
	closed       bool
}

func (d *fakeDriver) Open(context.Context, string) (browser.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.opens <= d.failures {
		return nil, errAutomationDown
	}
	page := newFakePage()
	if d.captureFails {
		page.captureFn = func() (string, error) { return "", errAutomationDown }
	}
	d.pages = append(d.pages, page)
	return page, nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDriver) lastPage() *fakePage {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil
	}
	return d.pages[len(d.pages)-1]
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Publish(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) published() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Event, len(n.events))
	copy(out, n.events)
	return out
}

// testConfig returns the production policy compressed to millisecond
// budgets so retry and polling paths run in test time.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LaunchBackoff = time.Millisecond
	cfg.CaptureBackoff = time.Millisecond
	cfg.CaptureTimeout = 50 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.DismissTimeout = 5 * time.Millisecond
	cfg.ScrapeTimeout = 50 * time.Millisecond
	cfg.NotifyBackoff = time.Millisecond
	return cfg
}
