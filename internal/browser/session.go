// Package browser owns the Chrome session the crawler drives: launching a
// persistent-profile browser or attaching to one the user already runs, and
// exposing the page operations the crawl needs.
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"walmart-receipt-crawler/pkg/logger"
)

const acceptLanguage = "en-US,en;q=0.9"

// A4 paper in inches for CDP's PrintToPDF.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
	pdfMarginInch  = 0.4
)

// Config holds browser session settings.
type Config struct {
	Headless     bool
	ProfileDir   string
	ExecPath     string // empty lets chromedp locate a browser
	WindowWidth  int
	WindowHeight int
	PageTimeout  time.Duration
	NavInterval  time.Duration // minimum spacing between navigations
}

// DefaultConfig returns session defaults matching an interactive crawl.
func DefaultConfig() Config {
	return Config{
		Headless:     false,
		ProfileDir:   ".chromedp/walmart-profile",
		WindowWidth:  1380,
		WindowHeight: 820,
		PageTimeout:  45 * time.Second,
		NavInterval:  2 * time.Second,
	}
}

// Session is a single browser tab and the crawler's view of it. It
// implements the crawler's Driver interface.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	limiter     *rate.Limiter
	pageTimeout time.Duration
	log         *logger.Logger
	closeOnce   sync.Once
	closeErr    error
}

// Launch starts a browser with a persistent user profile. The session
// descends from ctx, so cancelling the run cancels in-flight page work.
func Launch(ctx context.Context, cfg Config, log *logger.Logger) (*Session, error) {
	if cfg.ProfileDir != "" {
		if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating profile directory: %w", err)
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.UserDataDir(cfg.ProfileDir),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := newSession(tabCtx, cancelTab, cancelAlloc, cfg, log)

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}),
		emulation.SetDeviceMetricsOverride(
			int64(cfg.WindowWidth),
			int64(cfg.WindowHeight),
			1,
			false,
		),
	)
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	s.log.Info("browser launched",
		"headless", cfg.Headless,
		"profile_dir", cfg.ProfileDir,
	)
	return s, nil
}

// Attach connects to a browser the user started with a remote debugging
// port and opens a fresh tab in it. The user's own profile, cookies, and
// fingerprint apply; no stealth script is installed.
func Attach(ctx context.Context, debugURL string, cfg Config, log *logger.Logger) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, debugURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := newSession(tabCtx, cancelTab, cancelAlloc, cfg, log)

	// First Run attaches and opens the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("attaching to browser at %s: %w", debugURL, err)
	}

	s.log.Info("attached to existing browser", "debug_url", debugURL)
	return s, nil
}

func newSession(tabCtx context.Context, cancelTab, cancelAlloc context.CancelFunc, cfg Config, log *logger.Logger) *Session {
	limit := rate.Inf
	if cfg.NavInterval > 0 {
		limit = rate.Every(cfg.NavInterval)
	}
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = DefaultConfig().PageTimeout
	}
	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		limiter:     rate.NewLimiter(limit, 1),
		pageTimeout: pageTimeout,
		log:         log.WithComponent("browser"),
	}
}

// run executes chromedp actions on the session tab under the page timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(s.ctx, s.pageTimeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads url in the session tab, honoring the navigation pacing
// floor shared by every caller.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	s.log.Debug("navigating", "url", url)
	return s.run(ctx, chromedp.Navigate(url))
}

// WaitReady blocks until the document body exists.
func (s *Session) WaitReady(ctx context.Context) error {
	return s.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// CurrentURL reports the tab location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// Content returns the rendered document HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollBy scrolls the viewport by the given pixel offsets.
func (s *Session) ScrollBy(ctx context.Context, dx, dy int) error {
	script := fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy)
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

// Click clicks the first element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// PrintPDF prints the current page to an A4 PDF with backgrounds on.
func (s *Session) PrintPDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(a4WidthInches).
			WithPaperHeight(a4HeightInches).
			WithMarginTop(pdfMarginInch).
			WithMarginBottom(pdfMarginInch).
			WithMarginLeft(pdfMarginInch).
			WithMarginRight(pdfMarginInch).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close tears the session down: a launched browser exits, an attached one
// only loses the tab this session opened. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		s.log.Debug("browser session closed")
	})
	return s.closeErr
}

// DetectExecPath resolves a browser binary for the requested channel. The
// chrome channel prefers CHROME_PATH, then well-known install locations.
// Empty means chromedp's own lookup.
func DetectExecPath(channel string) string {
	if channel != "chrome" {
		return ""
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	paths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
