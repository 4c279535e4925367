// Package main is the entry point for the Walmart receipt crawler CLI.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"walmart-receipt-crawler/internal/browser"
	"walmart-receipt-crawler/internal/config"
	"walmart-receipt-crawler/internal/crawler"
	"walmart-receipt-crawler/internal/ledger"
	"walmart-receipt-crawler/internal/pdf"
	"walmart-receipt-crawler/pkg/logger"
	"walmart-receipt-crawler/pkg/shutdown"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	dayFormat         = "2006-01-02"
	defaultWindowDays = 90
)

// errInterrupted marks a run stopped by SIGINT/SIGTERM so main can exit 130.
var errInterrupted = errors.New("interrupted")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errInterrupted) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:     "walmart-receipt-crawler",
		Short:   "Export Walmart order receipts as PDFs",
		Long:    "Drives a real browser session over your Walmart account, finds orders in a date range, and prints each order's receipt page to PDF.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd.Execute()
}

// CrawlOptions holds options for the crawl command.
type CrawlOptions struct {
	Start       string
	End         string
	OutDir      string
	Combined    bool
	Separate    bool
	Headful     bool
	Headless    bool
	ProfileDir  string
	Browser     string
	UseExisting bool
	DebugPort   int
	Max         int
	Timeout     int
	Force       bool
	NoLedger    bool
	Debug       bool
}

// newCrawlCmd creates the crawl subcommand.
func newCrawlCmd() *cobra.Command {
	opts := &CrawlOptions{}

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl orders and export receipt PDFs",
		Long:  "Opens the my-orders page, waits for you to log in if needed, discovers orders in the date range, and exports one PDF per order.",
		Example: `  # Last 90 days, separate PDFs plus a combined file
  walmart-receipt-crawler crawl

  # Specific window, capped at 10 orders
  walmart-receipt-crawler crawl --start=2026-05-01 --end=2026-08-01 --max=10

  # Attach to a Chrome you started with --remote-debugging-port=9222
  walmart-receipt-crawler crawl --use-existing-browser

  # Re-export everything, ignoring the ledger
  walmart-receipt-crawler crawl --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "Window start date (YYYY-MM-DD, default 90 days before end)")
	cmd.Flags().StringVar(&opts.End, "end", "", "Window end date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&opts.OutDir, "out-dir", "o", "receipts", "Directory for exported PDFs")
	cmd.Flags().BoolVar(&opts.Combined, "combined", true, "Also merge the receipts into one PDF")
	cmd.Flags().BoolVar(&opts.Separate, "separate", false, "Skip the combined PDF")
	cmd.Flags().BoolVar(&opts.Headful, "headful", true, "Run the browser with a visible window")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "Run the browser headless (login must already be cached in the profile)")
	cmd.Flags().StringVar(&opts.ProfileDir, "profile-dir", ".chromedp/walmart-profile", "Persistent browser profile directory")
	cmd.Flags().StringVar(&opts.Browser, "browser", "chromium", "Browser channel: chromium or chrome")
	cmd.Flags().BoolVar(&opts.UseExisting, "use-existing-browser", false, "Attach to a browser with an open remote debugging port instead of launching one")
	cmd.Flags().IntVar(&opts.DebugPort, "remote-debugging-port", 9222, "Remote debugging port for --use-existing-browser")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "Maximum orders to export (0 = unlimited)")
	cmd.Flags().IntVar(&opts.Timeout, "timeout", 45, "Per-page timeout in seconds")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Export even when the ledger says a receipt already exists")
	cmd.Flags().BoolVar(&opts.NoLedger, "no-ledger", false, "Disable the export ledger")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Debug logging plus accumulator dumps under the output directory")

	return cmd
}

// newMergeCmd creates the merge subcommand.
func newMergeCmd() *cobra.Command {
	var dir string
	var out string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge previously exported receipt PDFs",
		Long:  "Concatenates per-order receipt PDFs from a directory into one file, in filename order (which is date order).",
		Example: `  # Merge everything under receipts/
  walmart-receipt-crawler merge --dir=receipts --out=receipts/all.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(dir, out)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "receipts", "Directory holding exported receipt PDFs")
	cmd.Flags().StringVar(&out, "out", "", "Output path for the merged PDF (required)")
	cmd.MarkFlagRequired("out")

	return cmd
}

// newHistoryCmd creates the history subcommand.
func newHistoryCmd() *cobra.Command {
	var limit int
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent crawl runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), ledgerPath, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Ledger database path (default: <out dir>/receipts.db)")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(ctx context.Context, cmd *cobra.Command, opts *CrawlOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCrawlFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Crawl.Debug {
		cfg.Log.Level = "debug"
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()

	window, err := parseWindow(opts.Start, opts.End, time.Now())
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.WithRun(runID)
	log.Info("starting crawl",
		"window_start", window.Start.Format(dayFormat),
		"window_end", window.End.Format(dayFormat),
		"out_dir", cfg.Crawl.OutDir,
		"max_orders", cfg.Crawl.MaxOrders,
		"use_existing_browser", cfg.Browser.UseExisting,
	)

	if err := os.MkdirAll(cfg.Crawl.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	handler := shutdown.New(log.Logger, 15*time.Second)
	runCtx, cancel := handler.Context(ctx)
	defer cancel()
	defer handler.Shutdown()

	// The ledger closes after the browser (LIFO), so late Record calls still land.
	var led *ledger.Ledger
	if !cfg.Ledger.Disabled {
		led, err = ledger.Open(cfg.LedgerPath())
		if err != nil {
			return err
		}
		handler.RegisterNamed("ledger", func(context.Context) error { return led.Close() })
	}

	sess, err := openSession(runCtx, cfg, log)
	if err != nil {
		return err
	}
	handler.RegisterNamed("browser", func(context.Context) error { return sess.Close() })

	// Attach mode assumes the user's own browser is already signed in, so
	// walls are fatal there instead of interactive.
	var prompter crawler.Prompter
	if !cfg.Browser.UseExisting {
		prompter = newStdinPrompter()
	}
	login := crawler.NewLoginFlow(sess, prompter, cfg.Crawl.PageTimeout, log)
	if err := login.EnsureLoggedIn(runCtx); err != nil {
		return mapInterrupt(handler, err)
	}

	if led != nil {
		if err := led.StartRun(runCtx, runID, window.Start, window.End); err != nil {
			log.WithError(err).Warn("recording run start failed")
		}
	}

	collectorCfg := crawler.DefaultCollectorConfig()
	collectorCfg.Window = window
	collectorCfg.MaxOrders = cfg.Crawl.MaxOrders
	collectorCfg.MaxPasses = cfg.Crawl.MaxPasses
	collectorCfg.ScrollDelayMin = cfg.Pacing.ScrollDelayMin
	collectorCfg.ScrollDelayMax = cfg.Pacing.ScrollDelayMax

	collector := crawler.NewCollector(sess, crawler.NewExtractor(log), collectorCfg, log)
	if cfg.Crawl.Debug {
		sink, err := crawler.NewDebugSink(filepath.Join(cfg.Crawl.OutDir, "debug"), runID, log)
		if err != nil {
			log.WithError(err).Warn("debug sink unavailable")
		} else {
			collector.SetDebugSink(sink)
		}
	}

	records, err := collector.Collect(runCtx)
	if err != nil {
		status := "failed"
		if handler.Interrupted() {
			status = "interrupted"
		}
		finishRun(runCtx, led, runID, status, 0, crawler.ExportSummary{}, log)
		return mapInterrupt(handler, err)
	}
	if len(records) == 0 {
		fmt.Println("No orders found in the requested window.")
		finishRun(runCtx, led, runID, "completed", 0, crawler.ExportSummary{}, log)
		return nil
	}

	resolver := crawler.NewResolver(sess, 2*time.Second, log)
	exporterCfg := crawler.DefaultExporterConfig()
	exporterCfg.OutDir = cfg.Crawl.OutDir
	exporterCfg.Force = opts.Force
	exporterCfg.RunID = runID
	exporterCfg.ExportDelayMin = cfg.Pacing.ExportDelayMin
	exporterCfg.ExportDelayMax = cfg.Pacing.ExportDelayMax

	var receiptLedger crawler.ReceiptLedger
	if led != nil {
		receiptLedger = led
	}
	exporter := crawler.NewExporter(sess, resolver, pdf.Inspector{}, receiptLedger, exporterCfg, log)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Exporting receipts"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	summary, err := exporter.ExportAll(runCtx, records, func(crawler.ExportResult, error) {
		bar.Add(1)
	})
	fmt.Println()
	if err != nil {
		status := "failed"
		if handler.Interrupted() {
			status = "interrupted"
		}
		finishRun(runCtx, led, runID, status, len(records), summary, log)
		return mapInterrupt(handler, err)
	}

	combinedPath := ""
	if cfg.Crawl.Combined && len(summary.Paths) > 0 {
		combinedPath = filepath.Join(cfg.Crawl.OutDir, crawler.CombinedPDFFilename(window))
		if err := pdf.Merge(summary.Paths, combinedPath); err != nil {
			log.WithError(err).Error("merging receipts failed")
			combinedPath = ""
		} else {
			log.Info("merged receipts", "count", len(summary.Paths), "path", combinedPath)
		}
	}

	status := "completed"
	if summary.Failed > 0 {
		status = "partial"
	}
	finishRun(runCtx, led, runID, status, len(records), summary, log)

	fmt.Println()
	fmt.Println("=== Crawl Summary ===")
	fmt.Printf("Window:    %s to %s\n", window.Start.Format(dayFormat), window.End.Format(dayFormat))
	fmt.Printf("Found:     %d\n", len(records))
	fmt.Printf("Exported:  %d\n", summary.Exported)
	fmt.Printf("Skipped:   %d\n", summary.Skipped)
	fmt.Printf("Failed:    %d\n", summary.Failed)
	fmt.Printf("Output:    %s\n", cfg.Crawl.OutDir)
	if combinedPath != "" {
		fmt.Printf("Combined:  %s\n", combinedPath)
	}
	fmt.Println("=====================")

	if summary.Failed > 0 {
		return fmt.Errorf("%d receipt(s) failed to export: %s",
			summary.Failed, strings.Join(summary.FailedOrders, ", "))
	}
	return nil
}

// mapInterrupt swaps a run error for the interrupt sentinel when a signal
// caused it, so main can exit 130.
func mapInterrupt(handler *shutdown.Handler, err error) error {
	if handler.Interrupted() {
		return errInterrupted
	}
	return err
}

func finishRun(ctx context.Context, led *ledger.Ledger, runID, status string, found int, sum crawler.ExportSummary, log *logger.Logger) {
	if led == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := led.FinishRun(ctx, runID, status, found, sum.Exported, sum.Skipped, sum.Failed); err != nil {
		log.WithError(err).Warn("recording run finish failed")
	}
}

// openSession launches a profile browser or attaches to a user-run one.
func openSession(ctx context.Context, cfg *config.Config, log *logger.Logger) (*browser.Session, error) {
	bcfg := browser.Config{
		Headless:     cfg.Browser.Headless,
		ProfileDir:   cfg.Browser.ProfileDir,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		PageTimeout:  cfg.Crawl.PageTimeout,
		NavInterval:  cfg.Pacing.NavInterval,
	}
	if cfg.Browser.UseExisting {
		debugURL := fmt.Sprintf("http://127.0.0.1:%d/", cfg.Browser.RemoteDebugPort)
		return browser.Attach(ctx, debugURL, bcfg, log)
	}
	bcfg.ExecPath = browser.DetectExecPath(cfg.Browser.Channel)
	return browser.Launch(ctx, bcfg, log)
}

// applyCrawlFlags overrides env-derived config with flags the user set.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config, opts *CrawlOptions) {
	flags := cmd.Flags()
	if flags.Changed("out-dir") {
		cfg.Crawl.OutDir = opts.OutDir
	}
	if flags.Changed("max") {
		cfg.Crawl.MaxOrders = opts.Max
	}
	if flags.Changed("timeout") {
		cfg.Crawl.PageTimeout = time.Duration(opts.Timeout) * time.Second
	}
	if flags.Changed("combined") {
		cfg.Crawl.Combined = opts.Combined
	}
	if flags.Changed("separate") {
		cfg.Crawl.Combined = !opts.Separate
	}
	if flags.Changed("debug") {
		cfg.Crawl.Debug = opts.Debug
	}
	if flags.Changed("headful") {
		cfg.Browser.Headless = !opts.Headful
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = opts.Headless
	}
	if flags.Changed("profile-dir") {
		cfg.Browser.ProfileDir = opts.ProfileDir
	}
	if flags.Changed("browser") {
		cfg.Browser.Channel = opts.Browser
	}
	if flags.Changed("use-existing-browser") {
		cfg.Browser.UseExisting = opts.UseExisting
	}
	if flags.Changed("remote-debugging-port") {
		cfg.Browser.RemoteDebugPort = opts.DebugPort
	}
	if flags.Changed("no-ledger") {
		cfg.Ledger.Disabled = opts.NoLedger
	}
}

// parseWindow resolves the crawl date window with the documented defaults.
func parseWindow(startStr, endStr string, now time.Time) (crawler.DateWindow, error) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if endStr != "" {
		var err error
		end, err = time.Parse(dayFormat, endStr)
		if err != nil {
			return crawler.DateWindow{}, fmt.Errorf("invalid --end date %q (want YYYY-MM-DD)", endStr)
		}
	}
	start := end.AddDate(0, 0, -defaultWindowDays)
	if startStr != "" {
		var err error
		start, err = time.Parse(dayFormat, startStr)
		if err != nil {
			return crawler.DateWindow{}, fmt.Errorf("invalid --start date %q (want YYYY-MM-DD)", startStr)
		}
	}
	if start.After(end) {
		return crawler.DateWindow{}, fmt.Errorf("start date %s is after end date %s",
			start.Format(dayFormat), end.Format(dayFormat))
	}
	return crawler.DateWindow{Start: start, End: end}, nil
}

// runMerge executes the merge command.
func runMerge(dir, out string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "walmart_*.pdf"))
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}
	// Exclude previously merged outputs.
	paths := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), "walmart_receipts_") {
			continue
		}
		paths = append(paths, m)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no receipt PDFs found under %s", dir)
	}
	sort.Strings(paths)

	if err := pdf.Merge(paths, out); err != nil {
		return err
	}
	fmt.Printf("Merged %d receipt(s) into %s\n", len(paths), out)
	return nil
}

// runHistory executes the history command.
func runHistory(ctx context.Context, ledgerPath string, limit int) error {
	if ledgerPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ledgerPath = cfg.LedgerPath()
	}
	if _, err := os.Stat(ledgerPath); err != nil {
		return fmt.Errorf("no ledger at %s (run a crawl first)", ledgerPath)
	}

	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	runs, err := led.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-23s  %-11s  %5s  %5s  %5s  %5s\n",
		"RUN", "STARTED", "WINDOW", "STATUS", "FOUND", "EXP", "SKIP", "FAIL")
	for _, r := range runs {
		window := fmt.Sprintf("%s..%s", r.WindowStart.Format(dayFormat), r.WindowEnd.Format(dayFormat))
		fmt.Printf("%-36s  %-20s  %-23s  %-11s  %5d  %5d  %5d  %5d\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			window,
			r.Status,
			r.Found, r.Exported, r.Skipped, r.Failed,
		)
	}
	return nil
}

// stdinPrompter relays operator instructions over the terminal.
type stdinPrompter struct {
	in *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(os.Stdin)}
}

func (p *stdinPrompter) Notify(msg string) {
	fmt.Println(msg)
}

func (p *stdinPrompter) Confirm(msg string) error {
	fmt.Print(msg + " ")
	_, err := p.in.ReadString('\n')
	return err
}
