package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMergeIdempotent(t *testing.T) {
	records := []OrderRecord{
		{},
		{OrderID: "100"},
		{
			OrderID:       "200",
			OrderDate:     date(2026, time.August, 10),
			OrderType:     OrderTypeStore,
			StorePurchase: true,
			GroupID:       5,
			DetailURL:     "https://www.walmart.com/orders/200?groupId=5",
			PDFFilename:   "walmart_2026-08-10_200.pdf",
		},
	}
	for _, rec := range records {
		assert.Equal(t, rec, Merge(rec, rec))
	}
}

func TestMergeFillsMissingFields(t *testing.T) {
	first := OrderRecord{
		OrderID:   "300",
		OrderDate: date(2026, time.July, 1),
	}
	second := OrderRecord{
		OrderID:   "300",
		DetailURL: "https://www.walmart.com/orders/300?groupId=2",
		GroupID:   2,
	}

	merged := Merge(first, second)

	assert.Equal(t, date(2026, time.July, 1), merged.OrderDate, "later empty date must not erase the known one")
	assert.Equal(t, "https://www.walmart.com/orders/300?groupId=2", merged.DetailURL)
	assert.Equal(t, 2, merged.GroupID)
}

func TestMergeLaterObservationWins(t *testing.T) {
	first := OrderRecord{
		OrderID:     "300",
		OrderDate:   date(2026, time.July, 1),
		DetailURL:   "https://www.walmart.com/orders/300",
		GroupID:     1,
		PDFFilename: "walmart_2026-07-01_300.pdf",
	}
	second := OrderRecord{
		OrderID:     "300",
		OrderDate:   date(2026, time.July, 2),
		DetailURL:   "https://www.walmart.com/orders/300?groupId=4",
		GroupID:     4,
		PDFFilename: "walmart_2026-07-02_300.pdf",
	}

	merged := Merge(first, second)

	assert.Equal(t, second.OrderDate, merged.OrderDate)
	assert.Equal(t, second.DetailURL, merged.DetailURL)
	assert.Equal(t, second.GroupID, merged.GroupID)
	assert.Equal(t, second.PDFFilename, merged.PDFFilename)
}

func TestMergeStorePurchaseIsSticky(t *testing.T) {
	yes := OrderRecord{OrderID: "400", StorePurchase: true}
	no := OrderRecord{OrderID: "400", StorePurchase: false}

	assert.True(t, Merge(yes, no).StorePurchase)
	assert.True(t, Merge(no, yes).StorePurchase)
	assert.False(t, Merge(no, no).StorePurchase)
}

func TestMergeOrderTypeBias(t *testing.T) {
	tests := []struct {
		name string
		a, b OrderType
		want OrderType
	}{
		{"online never displaces store", OrderTypeStore, OrderTypeOnline, OrderTypeStore},
		{"online never displaces pickup", OrderTypePickup, OrderTypeOnline, OrderTypePickup},
		{"concrete overrides online", OrderTypeOnline, OrderTypeStore, OrderTypeStore},
		{"later concrete wins", OrderTypeStore, OrderTypePickup, OrderTypePickup},
		{"both online stays online", OrderTypeOnline, OrderTypeOnline, OrderTypeOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := OrderRecord{OrderID: "500", OrderType: tt.a}
			b := OrderRecord{OrderID: "500", OrderType: tt.b}
			assert.Equal(t, tt.want, Merge(a, b).OrderType)
		})
	}
}

func TestMergeDifferentIDsReplaces(t *testing.T) {
	a := OrderRecord{OrderID: "1", OrderDate: date(2026, time.July, 1), StorePurchase: true}
	b := OrderRecord{OrderID: "2"}

	assert.Equal(t, b, Merge(a, b))
}

func TestPDFFilenameFor(t *testing.T) {
	got := PDFFilenameFor("200011122233344", date(2026, time.August, 3))
	assert.Equal(t, "walmart_2026-08-03_200011122233344.pdf", got)
}

func TestCombinedPDFFilename(t *testing.T) {
	w := DateWindow{Start: date(2026, time.May, 23), End: date(2026, time.August, 21)}
	assert.Equal(t, "walmart_receipts_2026-05-23_to_2026-08-21.pdf", CombinedPDFFilename(w))
}

func TestAccumulatorPreservesFirstSightingOrder(t *testing.T) {
	acc := NewAccumulator()

	require.True(t, acc.Upsert(OrderRecord{OrderID: "b"}))
	require.True(t, acc.Upsert(OrderRecord{OrderID: "a"}))
	require.True(t, acc.Upsert(OrderRecord{OrderID: "c"}))
	// Re-observing must not move an order.
	require.False(t, acc.Upsert(OrderRecord{OrderID: "a", GroupID: 3}))

	records := acc.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "b", records[0].OrderID)
	assert.Equal(t, "a", records[1].OrderID)
	assert.Equal(t, "c", records[2].OrderID)
	assert.Equal(t, 3, records[1].GroupID, "re-observation must merge")
}

func TestAccumulatorIgnoresEmptyIDs(t *testing.T) {
	acc := NewAccumulator()
	assert.False(t, acc.Upsert(OrderRecord{}))
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulatorUpsertAllCountsNew(t *testing.T) {
	acc := NewAccumulator()
	added := acc.UpsertAll([]OrderRecord{
		{OrderID: "1"},
		{OrderID: "2"},
		{OrderID: "1", GroupID: 7},
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, 7, acc.Records()[0].GroupID)
}
