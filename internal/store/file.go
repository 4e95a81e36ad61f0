package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradeworks/nightfade/internal/ledger"
	"github.com/tradeworks/nightfade/internal/signal"
)

const (
	stateFileName       = "session_state.json"
	metricsFileName     = "trade_metrics.json"
	performanceFileName = "performance.json"
	archiveDirName      = "archive"
)

// FileStore keeps everything under one state directory as indented
// JSON. Writes go through a temp file plus rename so a crash mid-write
// never leaves a torn checkpoint behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the state directory if needed and returns a
// store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create state dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, archiveDirName), 0o755); err != nil {
		return nil, fmt.Errorf("store: create archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) statePath() string       { return filepath.Join(s.dir, stateFileName) }
func (s *FileStore) metricsPath() string     { return filepath.Join(s.dir, metricsFileName) }
func (s *FileStore) performancePath() string { return filepath.Join(s.dir, performanceFileName) }

// LoadSession returns the live session for the given date, or (nil,
// nil) when none exists. A state file left behind by a different date
// is ignored; archiving at session end normally clears it.
func (s *FileStore) LoadSession(date string) (*ledger.SessionState, error) {
	raw, err := os.ReadFile(s.statePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read session state: %w", err)
	}

	var state ledger.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: decode session state: %w", err)
	}
	if state.SessionDate != date {
		return nil, nil
	}
	return &state, nil
}

// Checkpoint durably replaces the live session state.
func (s *FileStore) Checkpoint(state *ledger.SessionState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode session state: %w", err)
	}
	return s.writeAtomic(s.statePath(), raw)
}

// AppendTradeMetrics appends one round trip to the metrics journal. A
// corrupt journal is replaced rather than blocking the trade record.
func (s *FileStore) AppendTradeMetrics(m signal.TradeMetrics) error {
	var metrics []signal.TradeMetrics
	if raw, err := os.ReadFile(s.metricsPath()); err == nil {
		if err := json.Unmarshal(raw, &metrics); err != nil {
			metrics = nil
		}
	}
	metrics = append(metrics, m)

	raw, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode trade metrics: %w", err)
	}
	return s.writeAtomic(s.metricsPath(), raw)
}

// LoadTradeMetrics returns the full metrics journal, empty when none
// has been written yet.
func (s *FileStore) LoadTradeMetrics() ([]signal.TradeMetrics, error) {
	raw, err := os.ReadFile(s.metricsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read trade metrics: %w", err)
	}
	var metrics []signal.TradeMetrics
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return nil, fmt.Errorf("store: decode trade metrics: %w", err)
	}
	return metrics, nil
}

// UpdatePerformance folds a finished session into the running totals.
// Re-running for a date already in the log returns the totals unchanged.
func (s *FileStore) UpdatePerformance(sessionDate string, trades []signal.TradeMetrics) (Performance, error) {
	perf, err := s.LoadPerformance()
	if err != nil {
		return Performance{}, err
	}
	if perf.Applied(sessionDate) {
		return perf, nil
	}
	perf.ApplySession(sessionDate, trades)
	perf.LastUpdated = time.Now()

	raw, err := json.MarshalIndent(perf, "", "  ")
	if err != nil {
		return Performance{}, fmt.Errorf("store: encode performance: %w", err)
	}
	if err := s.writeAtomic(s.performancePath(), raw); err != nil {
		return Performance{}, err
	}
	return perf, nil
}

// LoadPerformance returns the running totals, zero-valued defaults when
// the file is missing or unreadable.
func (s *FileStore) LoadPerformance() (Performance, error) {
	perf := DefaultPerformance()
	raw, err := os.ReadFile(s.performancePath())
	if os.IsNotExist(err) {
		return perf, nil
	}
	if err != nil {
		return Performance{}, fmt.Errorf("store: read performance: %w", err)
	}
	if err := json.Unmarshal(raw, &perf); err != nil {
		// A corrupt totals file starts over rather than killing a boot.
		return DefaultPerformance(), nil
	}
	return perf, nil
}

// ArchiveSession writes the finished session under archive/ and clears
// the live state file.
func (s *FileStore) ArchiveSession(state *ledger.SessionState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode session archive: %w", err)
	}
	name := fmt.Sprintf("session_%s.json", state.SessionDate)
	if err := s.writeAtomic(filepath.Join(s.dir, archiveDirName, name), raw); err != nil {
		return err
	}
	if err := os.Remove(s.statePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: clear live session state: %w", err)
	}
	return nil
}

// writeAtomic writes via temp file and rename in the target directory.
func (s *FileStore) writeAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nightfade-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
