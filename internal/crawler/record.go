package crawler

import (
	"fmt"
	"time"
)

// OrderType classifies how an order was fulfilled.
type OrderType string

const (
	// OrderTypeOnline is the default classification for shipped orders.
	OrderTypeOnline OrderType = "online"
	// OrderTypeStore marks in-store purchases.
	OrderTypeStore OrderType = "store"
	// OrderTypePickup marks curbside pickup orders.
	OrderTypePickup OrderType = "pickup"
)

// OrderRecord is the canonical view of one order, assembled by merging
// partial observations from successive DOM snapshots.
type OrderRecord struct {
	OrderID       string
	OrderDate     time.Time // zero when not yet observed
	OrderType     OrderType
	StorePurchase bool
	GroupID       int    // site grouping hint, 0 for single-item grouping
	DetailURL     string // best-known printable detail page, empty until seen
	PDFFilename   string
}

// Merge combines two observations of an order. The later observation b wins
// per field when both sides carry a value, with two exceptions: StorePurchase
// is asserted if either side asserts it, and a concrete OrderType is never
// displaced by the online default. Records with different IDs do not merge;
// b replaces a wholesale.
func Merge(a, b OrderRecord) OrderRecord {
	if a.OrderID != b.OrderID {
		return b
	}
	return OrderRecord{
		OrderID:       a.OrderID,
		OrderDate:     pickDate(a.OrderDate, b.OrderDate),
		OrderType:     pickOrderType(a.OrderType, b.OrderType),
		StorePurchase: a.StorePurchase || b.StorePurchase,
		GroupID:       pickInt(a.GroupID, b.GroupID),
		DetailURL:     pickString(a.DetailURL, b.DetailURL),
		PDFFilename:   pickString(a.PDFFilename, b.PDFFilename),
	}
}

func pickString(a, b string) string {
	if b != "" {
		return b
	}
	return a
}

func pickInt(a, b int) int {
	if b != 0 {
		return b
	}
	return a
}

func pickDate(a, b time.Time) time.Time {
	if !b.IsZero() {
		return b
	}
	return a
}

// pickOrderType keeps a concrete classification over the online default.
func pickOrderType(a, b OrderType) OrderType {
	if b != "" && b != OrderTypeOnline {
		return b
	}
	if a != "" && a != OrderTypeOnline {
		return a
	}
	if b != "" {
		return b
	}
	return a
}

// PDFFilenameFor names the exported receipt for one order. The date prefix
// keeps lexicographic and chronological order aligned.
func PDFFilenameFor(orderID string, date time.Time) string {
	return fmt.Sprintf("walmart_%s_%s.pdf", date.Format("2006-01-02"), orderID)
}

// CombinedPDFFilename names the merged output for an inclusive date window.
func CombinedPDFFilename(w DateWindow) string {
	return fmt.Sprintf("walmart_receipts_%s_to_%s.pdf",
		w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Accumulator deduplicates order observations by ID while preserving the
// order in which each ID was first seen.
type Accumulator struct {
	records map[string]OrderRecord
	order   []string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{records: make(map[string]OrderRecord)}
}

// Upsert merges rec into the accumulator and reports whether its ID was new.
// Records without an ID are ignored.
func (a *Accumulator) Upsert(rec OrderRecord) bool {
	if rec.OrderID == "" {
		return false
	}
	existing, seen := a.records[rec.OrderID]
	if !seen {
		a.records[rec.OrderID] = rec
		a.order = append(a.order, rec.OrderID)
		return true
	}
	a.records[rec.OrderID] = Merge(existing, rec)
	return false
}

// UpsertAll merges every record and reports how many IDs were new.
func (a *Accumulator) UpsertAll(recs []OrderRecord) int {
	added := 0
	for _, rec := range recs {
		if a.Upsert(rec) {
			added++
		}
	}
	return added
}

// Len reports the number of distinct orders seen.
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Records returns the merged records in first-sighting order.
func (a *Accumulator) Records() []OrderRecord {
	out := make([]OrderRecord, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id])
	}
	return out
}
