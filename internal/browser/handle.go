// Package browser manages one Chrome headless instance per interactive
// session: launch, connect via Rod, open a single stealth page on the site
// entry point, drive hover/click/load-more interactions, release.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures a session's browser handle.
type Config struct {
	// EntryURL is the site entry point each new session navigates to.
	EntryURL string

	// NavTimeout bounds each navigation and element lookup. Default: 30s.
	NavTimeout time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// Headless controls Chrome mode. Default: true.
	Headless *bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handle owns one Chrome instance and one page. It is bound to exactly one
// session and never shared; the session registry serializes access to it.
type Handle struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// Launch starts a dedicated Chrome, opens a stealth page, and navigates it
// to the entry URL. On any failure everything already started is torn down.
func Launch(ctx context.Context, cfg Config) (*Handle, error) {
	cfg.defaults()

	l := launcher.New().Headless(*cfg.Headless)
	// Anti-detection flags.
	l = l.Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	h := &Handle{cfg: cfg, browser: b, lnch: l}

	page, err := stealth.Page(b)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	h.page = page

	if len(cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, cfg.ResourceBlocking); err != nil {
			cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	if cfg.EntryURL != "" {
		if err := h.Navigate(ctx, cfg.EntryURL); err != nil {
			h.Close()
			return nil, err
		}
	}

	return h, nil
}

// Page exposes the underlying Rod page for scraper collaborators.
func (h *Handle) Page() *rod.Page {
	return h.page
}

// Navigate drives the page to url and waits for load.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavTimeout)
	defer cancel()

	if err := h.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := h.page.Context(navCtx).WaitLoad(); err != nil {
		h.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Hover moves the mouse over the element matching selector, revealing
// hover-driven menus. Returns false with nil error when no element matches.
func (h *Handle) Hover(ctx context.Context, selector string) (bool, error) {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavTimeout)
	defer cancel()

	page := h.page.Context(navCtx)
	has, el, err := page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("browser: hover lookup %s: %w", selector, err)
	}
	if !has {
		return false, nil
	}
	if err := el.ScrollIntoView(); err != nil {
		return true, fmt.Errorf("browser: scroll to %s: %w", selector, err)
	}
	if err := el.Hover(); err != nil {
		return true, fmt.Errorf("browser: hover %s: %w", selector, err)
	}
	return true, nil
}

// Click clicks the element matching selector and waits for the resulting
// navigation or DOM settle.
func (h *Handle) Click(ctx context.Context, selector string) error {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavTimeout)
	defer cancel()

	page := h.page.Context(navCtx)
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("browser: click lookup %s: %w", selector, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("browser: scroll to %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	if err := page.WaitLoad(); err != nil {
		h.cfg.Logger.Warn("browser: wait load after click", "selector", selector, "error", err)
	}
	return nil
}

// TriggerLoadMore clicks the site's load-more affordance when present and
// visible. Returns false with nil error when the page offers no further load.
func (h *Handle) TriggerLoadMore(ctx context.Context, selector string) (bool, error) {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavTimeout)
	defer cancel()

	page := h.page.Context(navCtx)
	has, el, err := page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("browser: load-more lookup %s: %w", selector, err)
	}
	if !has {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, nil
	}
	if err := el.ScrollIntoView(); err != nil {
		return false, fmt.Errorf("browser: scroll to %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("browser: click load-more: %w", err)
	}
	// Give the site a beat to append results.
	if err := page.WaitDOMStable(time.Second, 0.1); err != nil {
		h.cfg.Logger.Debug("browser: dom not stable after load-more", "error", err)
	}
	return true, nil
}

// HTML serialises the current page as outer HTML.
func (h *Handle) HTML(ctx context.Context) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.NavTimeout)
	defer cancel()

	res, err := h.page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get HTML: %w", err)
	}
	return res.Value.Str(), nil
}

// CurrentURL returns the page's current location, or "" when unavailable.
func (h *Handle) CurrentURL() string {
	if h.page == nil {
		return ""
	}
	info, err := h.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close releases the page, the browser, and the launcher, in that order.
// All steps run; errors are joined.
func (h *Handle) Close() error {
	var errs []error
	if h.page != nil {
		if err := h.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: close page: %w", err))
		}
		h.page = nil
	}
	if h.browser != nil {
		if err := h.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: close browser: %w", err))
		}
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
	return errors.Join(errs...)
}
