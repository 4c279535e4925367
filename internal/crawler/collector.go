package crawler

import (
	"context"
	"fmt"
	"time"

	"walmart-receipt-crawler/pkg/logger"
)

// CollectorConfig holds order discovery configuration.
type CollectorConfig struct {
	Window         DateWindow
	MaxOrders      int // 0 means unlimited
	MaxPasses      int // runaway guard on the scroll loop
	ScrollStep     int // pixels per scroll
	ScrollDelayMin time.Duration
	ScrollDelayMax time.Duration
}

// DefaultCollectorConfig returns collection defaults tuned to the site's
// incremental loading behavior.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MaxPasses:      60,
		ScrollStep:     2000,
		ScrollDelayMin: 3 * time.Second,
		ScrollDelayMax: 6 * time.Second,
	}
}

// Collector discovers orders on the my-orders page by repeatedly extracting
// the rendered DOM and scrolling until no new orders appear.
type Collector struct {
	driver    Driver
	extractor *Extractor
	cfg       CollectorConfig
	log       *logger.Logger
	debug     *DebugSink
}

// NewCollector creates a collector over an already-navigated orders page.
func NewCollector(driver Driver, extractor *Extractor, cfg CollectorConfig, log *logger.Logger) *Collector {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultCollectorConfig().MaxPasses
	}
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = DefaultCollectorConfig().ScrollStep
	}
	return &Collector{
		driver:    driver,
		extractor: extractor,
		cfg:       cfg,
		log:       log.WithComponent("collector"),
	}
}

// SetDebugSink attaches a debug artifact sink. A nil sink disables dumps.
func (c *Collector) SetDebugSink(sink *DebugSink) {
	c.debug = sink
}

// Collect runs the extract-merge-scroll loop and returns the discovered
// records in first-sighting order, truncated to MaxOrders when set. The loop
// stops when the accumulator size is stable across a full cycle, when
// MaxOrders is reached, or when ctx is cancelled.
func (c *Collector) Collect(ctx context.Context) ([]OrderRecord, error) {
	acc := NewAccumulator()
	previousSize := -1

	for pass := 1; pass <= c.cfg.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snapshot, err := c.driver.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading orders page: %w", err)
		}

		records, err := c.extractor.Extract(snapshot, c.cfg.Window)
		if err != nil {
			return nil, err
		}

		added := acc.UpsertAll(records)
		c.log.Debug("extraction pass",
			"pass", pass,
			"snapshot_bytes", len(snapshot),
			"extracted", len(records),
			"new", added,
			"total", acc.Len(),
		)
		c.debug.RecordPass(pass, len(snapshot), len(records), acc)

		if c.cfg.MaxOrders > 0 && acc.Len() >= c.cfg.MaxOrders {
			c.log.Info("reached order limit", "limit", c.cfg.MaxOrders)
			break
		}
		if acc.Len() == previousSize {
			c.log.Debug("no new orders after scroll, stopping", "total", acc.Len())
			break
		}
		previousSize = acc.Len()

		if err := c.driver.ScrollBy(ctx, 0, c.cfg.ScrollStep); err != nil {
			return nil, fmt.Errorf("scrolling orders page: %w", err)
		}
		if err := sleepCtx(ctx, jitterBetween(c.cfg.ScrollDelayMin, c.cfg.ScrollDelayMax)); err != nil {
			return nil, err
		}
	}

	records := acc.Records()
	if c.cfg.MaxOrders > 0 && len(records) > c.cfg.MaxOrders {
		records = records[:c.cfg.MaxOrders]
	}
	c.log.Info("order discovery finished", "orders", len(records))
	return records, nil
}
