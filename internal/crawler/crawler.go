// Package crawler turns a logged-in Walmart browser session into a set of
// per-order receipt PDFs. It discovers orders by reading the rendered
// my-orders page across scroll-triggered incremental loads, merges the
// partial observations into canonical records, resolves a printable detail
// page for each order, and prints that page to PDF.
package crawler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	// OrdersURL is the authenticated my-orders listing.
	OrdersURL = "https://www.walmart.com/orders"

	walmartBase = "https://www.walmart.com"
)

var (
	// ErrLoginTimeout is returned when the operator does not finish logging
	// in before the wait deadline.
	ErrLoginTimeout = errors.New("timed out waiting for login")

	// ErrNotLoggedIn is returned when the session hits a login or anti-bot
	// wall and no operator is available to clear it.
	ErrNotLoggedIn = errors.New("session is not logged in")

	// ErrResolutionFailed is returned when no candidate detail URL validates
	// and the click-through fallback also fails.
	ErrResolutionFailed = errors.New("no printable detail page found")
)

// Driver is the browser capability surface the crawler needs. The concrete
// implementation lives in internal/browser; tests use a scripted fake.
type Driver interface {
	// Navigate loads the given URL in the session tab.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the current document reaches a ready state.
	WaitReady(ctx context.Context) error
	// CurrentURL reports the tab's current location.
	CurrentURL(ctx context.Context) (string, error)
	// Content returns the rendered document as HTML.
	Content(ctx context.Context) (string, error)
	// ScrollBy scrolls the viewport by the given pixel offsets.
	ScrollBy(ctx context.Context, dx, dy int) error
	// Click clicks the first element matching the CSS selector.
	Click(ctx context.Context, selector string) error
	// PrintPDF prints the current page to an A4 PDF.
	PrintPDF(ctx context.Context) ([]byte, error)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitterBetween picks a random duration in [min, max] to approximate human
// pacing between page interactions.
func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
