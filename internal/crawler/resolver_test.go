package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(d *fakeDriver) *Resolver {
	return NewResolver(d, time.Millisecond, testLogger())
}

func printablePage(orderID string) string {
	return `<html><body><a data-automation-id="start-a-return-link-` + orderID + `">Start a return</a></body></html>`
}

func TestCandidateURLsOnlineWithKnownURL(t *testing.T) {
	rec := OrderRecord{
		OrderID:   "555",
		OrderType: OrderTypeOnline,
		GroupID:   5,
		DetailURL: "https://www.walmart.com/orders/555?groupId=5",
	}
	assert.Equal(t, []string{
		"https://www.walmart.com/orders/555?groupId=5",
		"https://www.walmart.com/orders/555/details?groupId=5",
		"https://www.walmart.com/orders/555/details",
		"https://www.walmart.com/orders/555",
	}, candidateURLs(rec))
}

func TestCandidateURLsStorePurchase(t *testing.T) {
	rec := OrderRecord{
		OrderID:       "77001",
		OrderType:     OrderTypeStore,
		StorePurchase: true,
	}
	assert.Equal(t, []string{
		"https://www.walmart.com/orders/77001?groupId=0&storePurchase=true",
		"https://www.walmart.com/orders/77001/details?groupId=0&storePurchase=true",
	}, candidateURLs(rec))
}

func TestCandidateURLsKnownURLWithoutQuery(t *testing.T) {
	rec := OrderRecord{
		OrderID:   "9",
		OrderType: OrderTypeOnline,
		DetailURL: "https://www.walmart.com/orders/9",
	}
	assert.Equal(t, []string{
		"https://www.walmart.com/orders/9",
		"https://www.walmart.com/orders/9?groupId=0",
		"https://www.walmart.com/orders/9/details?groupId=0",
		"https://www.walmart.com/orders/9/details",
	}, candidateURLs(rec))
}

func TestDetailsVariant(t *testing.T) {
	v, ok := detailsVariant("https://www.walmart.com/orders/1?groupId=2")
	require.True(t, ok)
	assert.Equal(t, "https://www.walmart.com/orders/1/details?groupId=2", v)

	_, ok = detailsVariant("https://www.walmart.com/orders/1")
	assert.False(t, ok, "no query string, nothing to carry over")

	_, ok = detailsVariant("https://www.walmart.com/orders/1/details?groupId=2")
	assert.False(t, ok, "already a details URL")
}

func TestResolveFirstCandidateWins(t *testing.T) {
	known := "https://www.walmart.com/orders/555?groupId=5"
	d := newFakeDriver()
	d.contentAt = map[string]string{known: printablePage("555")}

	rec := OrderRecord{OrderID: "555", OrderType: OrderTypeOnline, GroupID: 5, DetailURL: known}
	require.NoError(t, newTestResolver(d).Resolve(context.Background(), &rec))
	assert.Equal(t, known, rec.DetailURL)
	assert.Equal(t, []string{known}, d.navs, "no further candidates probed")
}

func TestResolveProbesCandidatesInOrder(t *testing.T) {
	printable := "https://www.walmart.com/orders/555/details"
	d := newFakeDriver()
	d.contentAt = map[string]string{
		// No return control here; the textual print heuristic decides.
		printable: `<html><body><button>Print this page</button><h1>Receipt</h1></body></html>`,
	}

	rec := OrderRecord{
		OrderID:   "555",
		OrderType: OrderTypeOnline,
		GroupID:   5,
		DetailURL: "https://www.walmart.com/orders/555?groupId=5",
	}
	require.NoError(t, newTestResolver(d).Resolve(context.Background(), &rec))
	assert.Equal(t, printable, rec.DetailURL)
	assert.Equal(t, []string{
		"https://www.walmart.com/orders/555?groupId=5",
		"https://www.walmart.com/orders/555/details?groupId=5",
		printable,
	}, d.navs)
}

func TestResolveClickThroughFallback(t *testing.T) {
	adopted := "https://www.walmart.com/orders/555/details?from=list"
	d := newFakeDriver()
	d.contentAt = map[string]string{} // every candidate renders nothing useful
	d.clickTo = adopted

	rec := OrderRecord{OrderID: "555", OrderType: OrderTypeOnline}
	require.NoError(t, newTestResolver(d).Resolve(context.Background(), &rec))
	assert.Equal(t, adopted, rec.DetailURL)
	require.NotEmpty(t, d.navs)
	assert.Equal(t, OrdersURL, d.navs[len(d.navs)-1])
	assert.Equal(t, []string{"a[data-automation-id='view-order-details-link-555']"}, d.clicks)
}

func TestResolveFailsWhenClickDoesNotNavigate(t *testing.T) {
	d := newFakeDriver()
	d.contentAt = map[string]string{}

	rec := OrderRecord{OrderID: "555", OrderType: OrderTypeOnline}
	err := newTestResolver(d).Resolve(context.Background(), &rec)
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Empty(t, rec.DetailURL, "failed resolution leaves the record untouched")
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := OrderRecord{OrderID: "555", OrderType: OrderTypeOnline}
	err := newTestResolver(newFakeDriver()).Resolve(ctx, &rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrResolutionFailed)
}

func TestIsPrintableDetailPage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"return control for this order", printablePage("555"), true},
		{"return control for another order", printablePage("999"), false},
		{"print and receipt wording", `<html><body>Print your receipt here</body></html>`, true},
		{"print wording alone", `<html><body>Print this page</body></html>`, false},
		{"empty page", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPrintableDetailPage(tt.content, "555"))
		})
	}
}
