// Package browser owns the one shared Chrome process: a warm-up tab that
// loads the session cookies and verifies login, one long-lived tab per feed,
// and a background focus-rotation job so no tab gets throttled by Chrome's
// background-tab power saving.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-co-op/gocron"
)

const (
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

	viewportWidth  = 650
	viewportHeight = 3000

	loginProbeTimeout = 30 * time.Second
)

// PoolConfig configures the shared browser process.
type PoolConfig struct {
	Headless    bool
	CookiesPath string
	// Origin is the site origin cookies are set against.
	Origin string
	// LoginProbe is a JS predicate that is truthy on a logged-in view.
	// Empty skips verification.
	LoginProbe string
}

// Pool owns the browser process and its per-feed tabs.
type Pool struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu   sync.Mutex
	tabs map[string]*chromeTab
	keys []string
	next int

	scheduler *gocron.Scheduler
	closeOnce sync.Once
}

// NewPool launches Chrome, installs the session cookies and verifies the
// session on a warm-up tab which is then discarded.
func NewPool(cfg PoolConfig) (*Pool, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		// Keep Chrome rendering every tab; the focus rotation handles the rest.
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "CalculateNativeWinOcclusion"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p := &Pool{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[string]*chromeTab),
	}

	if err := chromedp.Run(browserCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	if err := p.warmUp(cfg); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// warmUp sets cookies and checks login on a throwaway tab. Cookies are
// browser-wide, so every tab opened afterwards inherits the session.
func (p *Pool) warmUp(cfg PoolConfig) error {
	cookies, err := LoadCookies(cfg.CookiesPath)
	if err != nil {
		return err
	}

	warmCtx, warmCancel := chromedp.NewContext(p.browserCtx)
	defer warmCancel()

	tab := &chromeTab{ctx: warmCtx, cancel: warmCancel}
	if err := setupTab(warmCtx); err != nil {
		return fmt.Errorf("configuring warm-up tab: %w", err)
	}

	if err := chromedp.Run(warmCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := network.SetCookie(c.Name, c.Value).WithURL(cfg.Origin).Do(ctx); err != nil {
				return fmt.Errorf("setting cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tab.Navigate(navCtx, cfg.Origin); err != nil {
		return fmt.Errorf("warm-up navigation: %w", err)
	}

	if cfg.LoginProbe != "" {
		probeCtx, cancel := context.WithTimeout(context.Background(), loginProbeTimeout)
		defer cancel()
		if err := tab.WaitFor(probeCtx, cfg.LoginProbe); err != nil {
			// Not fatal: feeds may still render for logged-out sessions.
			slog.Warn("login could not be verified", slog.Any("error", err))
		} else {
			slog.Info("login verified")
		}
	}

	return nil
}

// OpenTab creates the long-lived tab for one feed. Tabs are never shared
// between feeds.
func (p *Pool) OpenTab(key string) (Tab, error) {
	ctx, cancel := chromedp.NewContext(p.browserCtx)
	if err := setupTab(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab for %s: %w", key, err)
	}

	tab := &chromeTab{ctx: ctx, cancel: cancel}

	p.mu.Lock()
	p.tabs[key] = tab
	p.keys = append(p.keys, key)
	p.mu.Unlock()

	slog.Info("tab ready", slog.String("feed", key))
	return tab, nil
}

// setupTab applies the fixed viewport, user agent and language headers every
// tab runs with.
func setupTab(ctx context.Context) error {
	return chromedp.Run(ctx,
		emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage("en-US,en;q=0.9"),
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
	)
}

// StartRotation begins cycling rendering focus across all open tabs on the
// given interval. Runs until Close, independent of pipeline progress.
func (p *Pool) StartRotation(interval time.Duration) {
	p.scheduler = gocron.NewScheduler(time.UTC)
	p.scheduler.Every(interval).Do(p.rotate)
	p.scheduler.StartAsync()
}

func (p *Pool) rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return
	}

	key := p.keys[p.next%len(p.keys)]
	p.next++
	tab, ok := p.tabs[key]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tab.BringToFront(ctx); err != nil {
		slog.Warn("tab focus failed", slog.String("feed", key), slog.Any("error", err))
		return
	}
	slog.Debug("focus switched", slog.String("feed", key))
}

// Close stops rotation and tears down every tab and the browser process.
// Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		if p.scheduler != nil {
			p.scheduler.Stop()
		}
		p.mu.Lock()
		for _, tab := range p.tabs {
			tab.cancel()
		}
		p.mu.Unlock()
		p.browserCancel()
		p.allocCancel()
		slog.Info("browser closed")
	})
}
