package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
)

// RodDriver implements Driver on top of a single detached Chrome
// instance; each Open creates an isolated incognito page context.
type RodDriver struct {
	cfg     Config
	browser *rod.Browser
}

// NewRodDriver launches (or re-launches) Chrome and connects to it.
func NewRodDriver(cfg Config) (*RodDriver, error) {
	controlURL, err := launcher.New().Headless(cfg.Headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return &RodDriver{cfg: cfg, browser: browser}, nil
}

// Open implements Driver.Open.
func (d *RodDriver) Open(ctx context.Context, url string) (Page, error) {
	incognito, err := d.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.ViewportWidth,
		Height:            d.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Failed to set viewport")
	}

	if err := page.Context(ctx).Timeout(d.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		// The target renders progressively; a slow load is not fatal, the
		// capture path has its own timeout.
		log.Debug().Err(err).Str("url", url).Msg("Page load wait timed out")
	}

	return &rodPage{page: page}, nil
}

// Close implements Driver.Close.
func (d *RodDriver) Close() error {
	return d.browser.Close()
}

var _ Driver = (*RodDriver)(nil)

// rodPage wraps a rod page for one session.
type rodPage struct {
	page   *rod.Page
	closed atomic.Bool
}

func (p *rodPage) Reload(ctx context.Context) error {
	if err := p.page.Context(ctx).Reload(); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		log.Debug().Err(err).Msg("Reload load wait timed out")
	}
	return nil
}

func (p *rodPage) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.page.Close()
}

func (p *rodPage) Alive() bool {
	if p.closed.Load() {
		return false
	}
	_, err := p.page.Info()
	return err == nil
}

func (p *rodPage) HasChallenge(ctx context.Context) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(challengeSelector)
	if err != nil {
		return false, fmt.Errorf("query challenge element: %w", err)
	}
	return has, nil
}

// CaptureChallenge extracts the QR challenge as a PNG data URL. The
// canvas is read via toDataURL; when the canvas cannot be located in
// time, the enclosing region is screenshotted instead.
func (p *rodPage) CaptureChallenge(ctx context.Context, timeout time.Duration) (string, error) {
	canvas, err := p.page.Context(ctx).Timeout(timeout).Element(challengeSelector)
	if err == nil {
		res, evalErr := canvas.Eval(`() => this.toDataURL("image/png")`)
		if evalErr == nil {
			if dataURL := res.Value.Str(); dataURL != "" {
				return dataURL, nil
			}
		}
		log.Debug().Err(evalErr).Msg("Challenge canvas found but extraction failed, falling back to screenshot")
	} else {
		log.Debug().Err(err).Msg("Challenge canvas not found in time, falling back to screenshot")
	}

	region, err := p.page.Context(ctx).Timeout(timeout).Element(challengeRegionSelector)
	if err != nil {
		return "", fmt.Errorf("challenge region not found: %w", err)
	}
	shot, err := region.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return "", fmt.Errorf("screenshot challenge region: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot), nil
}

// DismissContinue tries each dismiss strategy in sequence. No strategy's
// failure is fatal.
func (p *rodPage) DismissContinue(ctx context.Context, timeout time.Duration) bool {
	for _, selector := range continueSelectors {
		el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			log.Debug().Err(err).Str("selector", selector).Msg("Interstitial dismiss click failed")
			continue
		}
		return true
	}
	return false
}

// ChatPreviews scrapes up to limit conversations from the chat pane.
func (p *rodPage) ChatPreviews(ctx context.Context, limit int, timeout time.Duration) ([]domain.ChatPreview, error) {
	if _, err := p.page.Context(ctx).Timeout(timeout).Element(chatPaneSelector); err != nil {
		return nil, fmt.Errorf("chat pane not found: %w", err)
	}

	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: fmt.Sprintf(`
		() => {
			const rows = document.querySelectorAll(%q);
			const chats = [];
			rows.forEach((row, index) => {
				if (index >= %d) return;
				const id = row.getAttribute('data-id') || ('chat-' + index);
				const nameEl = row.querySelector('span[title]');
				const name = nameEl ? (nameEl.getAttribute('title') || 'Unknown') : 'Unknown';
				const imageEl = row.querySelector('img');
				const image = imageEl ? imageEl.src : %q;
				chats.push({ id, name, image });
			});
			return chats;
		}
		`, chatItemsSelector, limit, placeholderImageURL),
		ByValue: true,
	})
	if err != nil {
		return nil, fmt.Errorf("scrape chat list: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal chat list: %w", err)
	}

	var previews []domain.ChatPreview
	if err := json.Unmarshal(raw, &previews); err != nil {
		return nil, fmt.Errorf("decode chat list: %w", err)
	}
	return previews, nil
}

var _ Page = (*rodPage)(nil)
