package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"walmart-receipt-crawler/pkg/logger"
)

// ReceiptLedger records exported receipts so re-runs can skip orders whose
// PDFs already exist. Implementations live outside the crawl core.
type ReceiptLedger interface {
	Lookup(ctx context.Context, orderID string) (pdfPath string, ok bool, err error)
	Record(ctx context.Context, orderID string, orderDate time.Time, detailURL, pdfPath, runID string) error
}

// CaptureVerifier checks that an exported file is a readable PDF.
type CaptureVerifier interface {
	Verify(path string) (pages int, err error)
}

// ExporterConfig holds receipt export configuration.
type ExporterConfig struct {
	OutDir         string
	Force          bool // export even when the ledger says the PDF exists
	RunID          string
	Settle         time.Duration // pause after navigation before printing
	ExportDelayMin time.Duration
	ExportDelayMax time.Duration
}

// DefaultExporterConfig returns export defaults with human pacing between
// captures.
func DefaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		OutDir:         "receipts",
		Settle:         2 * time.Second,
		ExportDelayMin: 5 * time.Second,
		ExportDelayMax: 10 * time.Second,
	}
}

// ExportResult describes the outcome of exporting one order.
type ExportResult struct {
	OrderID string
	Path    string
	Skipped bool
}

// ExportSummary aggregates a batch of export outcomes. Paths holds every
// receipt on disk after the batch, exported or skipped, in input order.
type ExportSummary struct {
	Exported     int
	Skipped      int
	Failed       int
	Paths        []string
	FailedOrders []string
}

// Exporter prints resolved detail pages to per-order PDF files.
type Exporter struct {
	driver   Driver
	resolver *Resolver
	verifier CaptureVerifier
	ledger   ReceiptLedger // nil disables skip tracking
	cfg      ExporterConfig
	log      *logger.Logger
}

// NewExporter creates an exporter. ledger and verifier may be nil, which
// disables skip tracking and capture verification respectively.
func NewExporter(driver Driver, resolver *Resolver, verifier CaptureVerifier, ledger ReceiptLedger, cfg ExporterConfig, log *logger.Logger) *Exporter {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultExporterConfig().Settle
	}
	return &Exporter{
		driver:   driver,
		resolver: resolver,
		verifier: verifier,
		ledger:   ledger,
		cfg:      cfg,
		log:      log.WithComponent("exporter"),
	}
}

// Export resolves rec's detail page and prints it to {OutDir}/{PDFFilename}.
// Orders already recorded in the ledger with their file still on disk are
// skipped unless Force is set.
func (e *Exporter) Export(ctx context.Context, rec *OrderRecord) (ExportResult, error) {
	res := ExportResult{OrderID: rec.OrderID}

	if e.ledger != nil && !e.cfg.Force {
		path, ok, err := e.ledger.Lookup(ctx, rec.OrderID)
		if err != nil {
			e.log.WithError(err).Warn("ledger lookup failed", "order_id", rec.OrderID)
		} else if ok {
			if _, statErr := os.Stat(path); statErr == nil {
				e.log.Info("receipt already exported, skipping", "order_id", rec.OrderID, "path", path)
				res.Skipped = true
				res.Path = path
				return res, nil
			}
		}
	}

	if err := e.resolver.Resolve(ctx, rec); err != nil {
		return res, err
	}

	if err := e.driver.Navigate(ctx, rec.DetailURL); err != nil {
		return res, fmt.Errorf("opening detail page: %w", err)
	}
	if err := e.driver.WaitReady(ctx); err != nil {
		return res, fmt.Errorf("waiting for detail page: %w", err)
	}
	if err := sleepCtx(ctx, e.cfg.Settle); err != nil {
		return res, err
	}

	data, err := e.driver.PrintPDF(ctx)
	if err != nil {
		return res, fmt.Errorf("printing receipt: %w", err)
	}

	path := filepath.Join(e.cfg.OutDir, rec.PDFFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return res, fmt.Errorf("writing receipt: %w", err)
	}

	if e.verifier != nil {
		pages, err := e.verifier.Verify(path)
		if err != nil {
			os.Remove(path)
			return res, fmt.Errorf("capture verification failed: %w", err)
		}
		e.log.Debug("capture verified", "order_id", rec.OrderID, "pages", pages)
	}

	if e.ledger != nil {
		if err := e.ledger.Record(ctx, rec.OrderID, rec.OrderDate, rec.DetailURL, path, e.cfg.RunID); err != nil {
			e.log.WithError(err).Warn("recording receipt in ledger failed", "order_id", rec.OrderID)
		}
	}

	e.log.Info("receipt exported", "order_id", rec.OrderID, "path", path)
	res.Path = path
	return res, nil
}

// ExportAll exports every record in order, pacing between orders. Per-order
// failures are counted and the batch continues; cancellation aborts with the
// partial summary. progress, when non-nil, is invoked after each order.
func (e *Exporter) ExportAll(ctx context.Context, records []OrderRecord, progress func(ExportResult, error)) (ExportSummary, error) {
	var sum ExportSummary

	if err := os.MkdirAll(e.cfg.OutDir, 0o755); err != nil {
		return sum, fmt.Errorf("creating output directory: %w", err)
	}

	for i := range records {
		rec := &records[i]
		res, err := e.Export(ctx, rec)
		if err != nil && ctx.Err() != nil {
			return sum, ctx.Err()
		}

		switch {
		case err != nil:
			sum.Failed++
			sum.FailedOrders = append(sum.FailedOrders, rec.OrderID)
			e.log.WithError(err).Error("receipt export failed", "order_id", rec.OrderID)
		case res.Skipped:
			sum.Skipped++
			sum.Paths = append(sum.Paths, res.Path)
		default:
			sum.Exported++
			sum.Paths = append(sum.Paths, res.Path)
		}

		if progress != nil {
			progress(res, err)
		}

		if i < len(records)-1 {
			if err := sleepCtx(ctx, jitterBetween(e.cfg.ExportDelayMin, e.cfg.ExportDelayMax)); err != nil {
				return sum, err
			}
		}
	}

	return sum, nil
}
