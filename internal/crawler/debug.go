package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"walmart-receipt-crawler/pkg/logger"
)

// DebugSink writes crawl introspection artifacts: a JSON view of the
// accumulator refreshed every pass, and an append-only pass log. Sink
// failures are logged, never fatal. A nil sink is a no-op.
type DebugSink struct {
	dir   string
	runID string
	log   *logger.Logger
	mu    sync.Mutex
}

// NewDebugSink creates a sink writing under dir.
func NewDebugSink(dir, runID string, log *logger.Logger) (*DebugSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating debug directory: %w", err)
	}
	return &DebugSink{dir: dir, runID: runID, log: log.WithComponent("debug")}, nil
}

// RecordPass dumps the accumulator state and appends one pass summary line.
func (s *DebugSink) RecordPass(pass, snapshotBytes, extracted int, acc *Accumulator) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, err := json.MarshalIndent(acc.Records(), "", "  "); err == nil {
		path := filepath.Join(s.dir, fmt.Sprintf("accumulator_%s.json", s.runID))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			s.log.WithError(err).Warn("writing accumulator dump failed")
		}
	}

	line := fmt.Sprintf("%s pass=%d snapshot_bytes=%d extracted=%d total=%d\n",
		time.Now().Format(time.RFC3339), pass, snapshotBytes, extracted, acc.Len())
	path := filepath.Join(s.dir, fmt.Sprintf("passes_%s.log", s.runID))
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.log.WithError(err).Warn("opening pass log failed")
		return
	}
	defer fh.Close()
	if _, err := fh.WriteString(line); err != nil {
		s.log.WithError(err).Warn("writing pass log failed")
	}
}
