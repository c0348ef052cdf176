// Package browser provides the automation driver for the WhatsApp Web
// login flow: page lifecycle plus the narrow scraping queries the
// session core needs (challenge element, chat list, continue button).
// Adapting to upstream UI changes is isolated to this package.
package browser

import (
	"context"
	"time"

	"go.pilab.hu/wabroker/domain"
)

// Driver produces controllable pages against the target web client.
type Driver interface {
	// Open creates a fresh page context and navigates it to url.
	Open(ctx context.Context, url string) (Page, error)
	// Close tears down the underlying browser process.
	Close() error
}

// Page is one controllable page, exclusively owned by a single session.
type Page interface {
	// Reload navigates the page back to its current URL and waits for load.
	Reload(ctx context.Context) error
	// Close destroys the page context. Safe to call twice.
	Close() error
	// Alive reports whether the underlying page is still usable.
	Alive() bool

	// HasChallenge reports whether the QR challenge element is currently
	// present. It does not wait for the element to appear.
	HasChallenge(ctx context.Context) (bool, error)
	// CaptureChallenge waits up to timeout for the challenge element and
	// extracts it as a PNG data URL, falling back to a screenshot of the
	// enclosing region when the element itself cannot be found.
	CaptureChallenge(ctx context.Context, timeout time.Duration) (string, error)
	// DismissContinue attempts to click through any post-authentication
	// interstitial dialog. Best-effort: returns whether anything was
	// dismissed.
	DismissContinue(ctx context.Context, timeout time.Duration) bool
	// ChatPreviews scrapes up to limit conversations from the chat pane.
	ChatPreviews(ctx context.Context, limit int, timeout time.Duration) ([]domain.ChatPreview, error)
}

// Config holds driver configuration.
type Config struct {
	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      900,
		NavigationTimeoutMs: 30000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}
