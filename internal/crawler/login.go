package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"walmart-receipt-crawler/pkg/logger"
)

const (
	loginPathMarker   = "/account/login"
	blockedPathMarker = "/blocked"

	pollInterval  = 300 * time.Millisecond
	blockedSettle = 2 * time.Second

	// Login is human-speed; the wait deadline is a multiple of the page
	// timeout rather than a second knob.
	loginWaitFactor = 10
	readyWaitFactor = 2
)

var errWaitTimeout = errors.New("condition not met before deadline")

// Prompter relays instructions to the human operator driving the browser.
type Prompter interface {
	// Notify prints a message without waiting.
	Notify(msg string)
	// Confirm prints a message and blocks until the operator acknowledges.
	Confirm(msg string) error
}

// LoginFlow brings the session to a usable orders page, pausing for manual
// login and anti-bot checks. Credentials are never handled here; the
// operator logs in inside the real browser window.
type LoginFlow struct {
	driver      Driver
	prompter    Prompter // nil means non-interactive
	pageTimeout time.Duration
	poll        time.Duration
	blockSettle time.Duration
	log         *logger.Logger
}

// NewLoginFlow creates a login flow. A nil prompter makes walls fatal
// instead of interactive, which is what attach mode wants.
func NewLoginFlow(driver Driver, prompter Prompter, pageTimeout time.Duration, log *logger.Logger) *LoginFlow {
	return &LoginFlow{
		driver:      driver,
		prompter:    prompter,
		pageTimeout: pageTimeout,
		poll:        pollInterval,
		blockSettle: blockedSettle,
		log:         log.WithComponent("login"),
	}
}

// EnsureLoggedIn navigates to the orders page and clears any login redirect
// or anti-bot wall in the way, waiting on the operator where needed.
func (f *LoginFlow) EnsureLoggedIn(ctx context.Context) error {
	if err := f.driver.Navigate(ctx, OrdersURL); err != nil {
		return fmt.Errorf("opening orders page: %w", err)
	}
	if err := f.driver.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for orders page: %w", err)
	}

	current, err := f.driver.CurrentURL(ctx)
	if err != nil {
		return err
	}

	if strings.Contains(current, loginPathMarker) {
		if f.prompter == nil {
			return ErrNotLoggedIn
		}
		f.prompter.Notify("Log in to Walmart in the browser window. The crawl resumes once you are signed in.")
		f.log.Info("waiting for manual login", "deadline", loginWaitFactor*f.pageTimeout)

		err := waitUntil(ctx, loginWaitFactor*f.pageTimeout, f.poll, func(ctx context.Context) (bool, error) {
			u, err := f.driver.CurrentURL(ctx)
			if err != nil {
				// Transient read failures just mean poll again.
				return false, nil
			}
			return !strings.Contains(u, loginPathMarker), nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLoginTimeout
		}
		f.log.Info("login detected")
	}

	blocked, err := f.isBlocked(ctx)
	if err != nil {
		return err
	}
	if blocked {
		if f.prompter == nil {
			return fmt.Errorf("%w: anti-bot check active", ErrNotLoggedIn)
		}
		if err := f.prompter.Confirm("Walmart is showing a robot check. Solve it in the browser, then press Enter."); err != nil {
			return err
		}
		if err := sleepCtx(ctx, f.blockSettle); err != nil {
			return err
		}
		blocked, err = f.isBlocked(ctx)
		if err != nil {
			return err
		}
		if blocked {
			return fmt.Errorf("%w: anti-bot check still active", ErrNotLoggedIn)
		}
	}

	current, err = f.driver.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(current, "/orders") {
		if err := f.driver.Navigate(ctx, OrdersURL); err != nil {
			return fmt.Errorf("returning to orders page: %w", err)
		}
		if err := f.driver.WaitReady(ctx); err != nil {
			return err
		}
	}

	// Client rendering can lag the navigation; give the cards a bounded
	// chance to paint but do not fail the run over it.
	if err := waitUntil(ctx, readyWaitFactor*f.pageTimeout, f.poll, f.ordersReady); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("orders page did not confirm readiness, continuing")
	}
	return nil
}

// ordersReady reports whether order cards are rendered or the tab at least
// sits on the orders path.
func (f *LoginFlow) ordersReady(ctx context.Context) (bool, error) {
	if content, err := f.driver.Content(ctx); err == nil && strings.Contains(content, detailsLinkPrefix) {
		return true, nil
	}
	if u, err := f.driver.CurrentURL(ctx); err == nil && strings.Contains(u, "/orders") && !strings.Contains(u, loginPathMarker) {
		return true, nil
	}
	return false, nil
}

// isBlocked detects Walmart's anti-bot interstitial by URL or page text.
func (f *LoginFlow) isBlocked(ctx context.Context) (bool, error) {
	u, err := f.driver.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	if strings.Contains(u, blockedPathMarker) {
		return true, nil
	}
	content, err := f.driver.Content(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(content), "robot"), nil
}

// waitUntil polls pred every interval until it reports true, the deadline
// passes, or ctx is cancelled.
func waitUntil(ctx context.Context, limit, interval time.Duration, pred func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(limit)
	for {
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errWaitTimeout
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}
