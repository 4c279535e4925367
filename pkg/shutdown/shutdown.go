// Package shutdown provides cleanup handling for interrupted crawl runs.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Handler manages teardown of run resources on both normal and signalled exits.
type Handler struct {
	logger      *slog.Logger
	timeout     time.Duration
	cleanups    []namedCleanup
	mu          sync.Mutex
	once        sync.Once
	interrupted atomic.Bool
}

// CleanupFunc is a function called during shutdown.
type CleanupFunc func(ctx context.Context) error

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// New creates a new shutdown handler.
func New(logger *slog.Logger, timeout time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		timeout:  timeout,
		cleanups: make([]namedCleanup, 0),
	}
}

// Register adds a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (h *Handler) Register(fn CleanupFunc) {
	h.RegisterNamed("", fn)
}

// RegisterNamed adds a named cleanup function for better logging.
func (h *Handler) RegisterNamed(name string, fn CleanupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled on SIGINT or SIGTERM.
// The first signal cancels the run; cleanup still runs via Shutdown.
func (h *Handler) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-ch:
			h.interrupted.Store(true)
			h.logger.Warn("received signal, stopping run", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()

	return ctx, cancel
}

// Interrupted reports whether a shutdown signal was received.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Shutdown runs registered cleanups in reverse order. Safe to call more than
// once; only the first call does any work.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		cleanups := make([]namedCleanup, len(h.cleanups))
		copy(cleanups, h.cleanups)
		h.mu.Unlock()

		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if c.name != "" {
				h.logger.Debug("shutting down component", "component", c.name)
			}
			if err := c.fn(ctx); err != nil {
				h.logger.Error("cleanup error", "component", c.name, "error", err)
			}
			if ctx.Err() != nil && i > 0 {
				h.logger.Warn("shutdown timed out, skipping remaining cleanups")
				return
			}
		}
	})
}
