package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"walmart-receipt-crawler/pkg/logger"
)

// Selector contract for the rendered my-orders DOM. Order cards expose
// structured automation attributes whose suffix is the order identifier.
const (
	selOrderContainer = "div[data-testid^='orderGroup']"
	selDetailsLink    = "a[data-automation-id^='view-order-details-link-']"
	selReturnLink     = "a[data-automation-id^='start-a-return-link-']"
	selCardHeadings   = "h1,h2,h3"

	attrAutomationID  = "data-automation-id"
	detailsLinkPrefix = "view-order-details-link-"
	returnLinkPrefix  = "start-a-return-link-"
)

// Classification markers in the card text.
const (
	markerCurbside      = "curbside"
	markerStorePurchase = "store purchase"
)

var (
	datedPattern    = regexp.MustCompile(`[A-Z][a-z]{2} \d{1,2}, \d{4}`)
	yearlessPattern = regexp.MustCompile(`[A-Z][a-z]{2} \d{1,2}`)
)

// Extractor reads order records out of a rendered my-orders page snapshot.
type Extractor struct {
	log *logger.Logger
	now func() time.Time
}

// NewExtractor creates an extractor. The clock supplies the year for
// yearless date labels.
func NewExtractor(log *logger.Logger) *Extractor {
	return &Extractor{
		log: log.WithComponent("extractor"),
		now: time.Now,
	}
}

// Extract parses one page snapshot and returns the records whose dates fall
// inside the window, deduplicated within the pass in first-sighting order.
// Malformed cards are skipped, never fatal.
func (e *Extractor) Extract(snapshotHTML string, window DateWindow) ([]OrderRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshotHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing orders page: %w", err)
	}

	acc := NewAccumulator()
	doc.Find(selOrderContainer).Each(func(_ int, card *goquery.Selection) {
		rec, ok := e.extractCard(card, window)
		if ok {
			acc.Upsert(rec)
		}
	})
	return acc.Records(), nil
}

func (e *Extractor) extractCard(card *goquery.Selection, window DateWindow) (OrderRecord, bool) {
	details := card.Find(selDetailsLink).First()

	id := orderIDFromAttr(details, detailsLinkPrefix)
	if id == "" {
		id = orderIDFromAttr(card.Find(selReturnLink).First(), returnLinkPrefix)
	}
	if id == "" {
		e.log.Debug("order card without identifier, skipping")
		return OrderRecord{}, false
	}

	date, ok := e.cardDate(card, details)
	if !ok {
		e.log.Debug("order card without parseable date, skipping", "order_id", id)
		return OrderRecord{}, false
	}
	if !window.Contains(date) {
		return OrderRecord{}, false
	}

	orderType, storePurchase := classifyCard(strings.ToLower(card.Text()))

	rec := OrderRecord{
		OrderID:       id,
		OrderDate:     date,
		OrderType:     orderType,
		StorePurchase: storePurchase,
		PDFFilename:   PDFFilenameFor(id, date),
	}

	if href, exists := details.Attr("href"); exists && href != "" {
		rec.DetailURL = absoluteURL(href)
		rec.GroupID = groupIDFromURL(rec.DetailURL)
	}

	return rec, true
}

// cardDate finds the order date in the card headings, falling back to the
// details control's accessible label. Yearless labels get the current year.
func (e *Extractor) cardDate(card, details *goquery.Selection) (time.Time, bool) {
	var raw string
	card.Find(selCardHeadings).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if m := datedPattern.FindString(h.Text()); m != "" {
			raw = m
			return false
		}
		return true
	})

	if raw == "" {
		label := details.AttrOr("aria-label", "")
		if m := datedPattern.FindString(label); m != "" {
			raw = m
		} else if m := yearlessPattern.FindString(label); m != "" {
			raw = fmt.Sprintf("%s, %d", m, e.now().Year())
		}
	}

	if raw == "" {
		return time.Time{}, false
	}
	return ParseOrderDate(raw)
}

func classifyCard(lowerText string) (OrderType, bool) {
	switch {
	case strings.Contains(lowerText, markerCurbside):
		// Curbside cards sometimes carry store wording too; pickup wins.
		return OrderTypePickup, false
	case strings.Contains(lowerText, markerStorePurchase):
		return OrderTypeStore, true
	default:
		return OrderTypeOnline, false
	}
}

func orderIDFromAttr(sel *goquery.Selection, prefix string) string {
	v, exists := sel.Attr(attrAutomationID)
	if !exists || !strings.HasPrefix(v, prefix) {
		return ""
	}
	return strings.TrimPrefix(v, prefix)
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return walmartBase + href
}

func groupIDFromURL(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	g, err := strconv.Atoi(u.Query().Get("groupId"))
	if err != nil || g < 0 {
		return 0
	}
	return g
}
