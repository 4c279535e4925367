package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"walmart-receipt-crawler/pkg/logger"
)

// Resolver finds a URL that renders a printable detail page for an order.
// Candidates are probed lazily in a fixed priority order; content heuristics
// decide whether a candidate actually shows a receipt.
type Resolver struct {
	driver Driver
	log    *logger.Logger
	settle time.Duration
}

// NewResolver creates a resolver. settle is the post-navigation pause that
// lets client-side rendering finish before the page is inspected.
func NewResolver(driver Driver, settle time.Duration, log *logger.Logger) *Resolver {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Resolver{
		driver: driver,
		log:    log.WithComponent("resolver"),
		settle: settle,
	}
}

// Resolve updates rec.DetailURL to a URL whose page passed the printable
// content check, probing candidates in priority order and falling back to
// clicking the order's own details control on the listing page. Returns
// ErrResolutionFailed when every approach fails.
func (r *Resolver) Resolve(ctx context.Context, rec *OrderRecord) error {
	for _, candidate := range candidateURLs(*rec) {
		ok, err := r.probe(ctx, candidate, rec.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Debug("candidate probe failed", "order_id", rec.OrderID, "url", candidate, "error", err.Error())
			continue
		}
		if ok {
			r.log.Debug("detail page resolved", "order_id", rec.OrderID, "url", candidate)
			rec.DetailURL = candidate
			return nil
		}
	}

	// Last resort: let the site itself navigate and adopt wherever it lands.
	adopted, err := r.clickThrough(ctx, rec.OrderID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Warn("details click-through failed", "order_id", rec.OrderID)
		return fmt.Errorf("order %s: %w", rec.OrderID, ErrResolutionFailed)
	}
	r.log.Debug("adopted click-through url", "order_id", rec.OrderID, "url", adopted)
	rec.DetailURL = adopted
	return nil
}

// candidateURLs builds the probe order for a record: the already-known URL
// exactly as observed, its /details variant with the query string carried
// over, then heuristic layouts of the canonical order URL.
func candidateURLs(rec OrderRecord) []string {
	var candidates []string

	if rec.DetailURL != "" {
		candidates = append(candidates, rec.DetailURL)
		if variant, ok := detailsVariant(rec.DetailURL); ok {
			candidates = append(candidates, variant)
		}
	}

	base := walmartBase + "/orders/" + rec.OrderID
	if rec.StorePurchase || rec.OrderType == OrderTypeStore {
		candidates = append(candidates,
			fmt.Sprintf("%s?groupId=%d&storePurchase=true", base, rec.GroupID),
			fmt.Sprintf("%s/details?groupId=%d&storePurchase=true", base, rec.GroupID),
		)
	} else {
		candidates = append(candidates,
			fmt.Sprintf("%s?groupId=%d", base, rec.GroupID),
			fmt.Sprintf("%s/details?groupId=%d", base, rec.GroupID),
			base+"/details",
			base,
		)
	}

	return dedupeInOrder(candidates)
}

// detailsVariant rewrites a query-carrying URL onto its /details path,
// keeping the raw query byte-identical.
func detailsVariant(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" || strings.HasSuffix(u.Path, "/details") {
		return "", false
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/details"
	return u.String(), true
}

func dedupeInOrder(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// probe navigates to a candidate and checks whether the rendered page looks
// like a printable receipt for the order.
func (r *Resolver) probe(ctx context.Context, candidate, orderID string) (bool, error) {
	if err := r.driver.Navigate(ctx, candidate); err != nil {
		return false, err
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return false, err
	}
	if err := sleepCtx(ctx, r.settle); err != nil {
		return false, err
	}
	content, err := r.driver.Content(ctx)
	if err != nil {
		return false, err
	}
	return isPrintableDetailPage(content, orderID), nil
}

// isPrintableDetailPage accepts a page that carries this order's return
// control, or failing that, any page whose text mentions both printing and a
// receipt.
func isPrintableDetailPage(content, orderID string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return false
	}
	returnSel := fmt.Sprintf("a[%s='%s%s']", attrAutomationID, returnLinkPrefix, orderID)
	if doc.Find(returnSel).Length() > 0 {
		return true
	}
	text := strings.ToLower(doc.Text())
	return strings.Contains(text, "print") && strings.Contains(text, "receipt")
}

// clickThrough returns to the orders listing, clicks this order's details
// control, and reports the URL the site navigated to. The result is adopted
// without content validation.
func (r *Resolver) clickThrough(ctx context.Context, orderID string) (string, error) {
	if err := r.driver.Navigate(ctx, OrdersURL); err != nil {
		return "", fmt.Errorf("returning to orders list: %w", err)
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return "", err
	}
	if err := sleepCtx(ctx, r.settle); err != nil {
		return "", err
	}

	selector := fmt.Sprintf("a[%s='%s%s']", attrAutomationID, detailsLinkPrefix, orderID)
	if err := r.driver.Click(ctx, selector); err != nil {
		return "", fmt.Errorf("clicking details control: %w", err)
	}
	if err := sleepCtx(ctx, r.settle); err != nil {
		return "", err
	}
	if err := r.driver.WaitReady(ctx); err != nil {
		return "", err
	}

	adopted, err := r.driver.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSuffix(adopted, "/") == OrdersURL {
		return "", errors.New("details control did not navigate")
	}
	return adopted, nil
}
