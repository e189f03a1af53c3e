// Package ledger records which filings have been fully processed so an
// interrupted run can resume without refetching them.
//
// The ledger is one JSON file per CIK. Every update rewrites the whole
// snapshot; entries are never removed.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileName is the ledger file name inside a CIK's output directory.
const FileName = "progress.json"

// ErrLedgerIO wraps failures to persist the ledger. It is never run-fatal.
var ErrLedgerIO = errors.New("ledger I/O error")

// snapshot is the on-disk form.
type snapshot struct {
	CIK       string    `json:"cik"`
	Processed []string  `json:"processed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is the set of accession numbers already processed for one CIK.
type Ledger struct {
	path   string
	cik    string
	done   map[string]struct{}
	logger *slog.Logger
}

// Path returns the ledger file path for cik under dir.
func Path(dir, cik string) string {
	return filepath.Join(dir, cik, FileName)
}

// Load reads the ledger at path. A missing or unreadable ledger yields an
// empty one; the problem is logged, never returned.
func Load(path, cik string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		path:   path,
		cik:    cik,
		done:   make(map[string]struct{}),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("ledger_not_found", "path", path)
		return l
	}
	if err != nil {
		logger.Warn("ledger_unreadable", "path", path, "error", err)
		return l
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("ledger_corrupt", "path", path, "error", err)
		return l
	}
	if snap.CIK != "" && snap.CIK != cik {
		logger.Warn("ledger_cik_mismatch", "path", path, "want", cik, "got", snap.CIK)
		return l
	}

	for _, acc := range snap.Processed {
		if acc != "" {
			l.done[acc] = struct{}{}
		}
	}
	logger.Debug("ledger_loaded", "path", path, "entries", len(l.done))
	return l
}

// Done reports whether accession has been processed.
func (l *Ledger) Done(accession string) bool {
	_, ok := l.done[accession]
	return ok
}

// Len returns the number of processed filings.
func (l *Ledger) Len() int { return len(l.done) }

// Processed returns the processed accession numbers, sorted.
func (l *Ledger) Processed() []string {
	out := make([]string, 0, len(l.done))
	for acc := range l.done {
		out = append(out, acc)
	}
	sort.Strings(out)
	return out
}

// MarkDone adds accession to the set and rewrites the snapshot.
// The in-memory set is updated even when the write fails.
func (l *Ledger) MarkDone(accession string) error {
	l.done[accession] = struct{}{}
	return l.save()
}

// save writes the snapshot to a temp file and renames it into place.
func (l *Ledger) save() error {
	snap := snapshot{
		CIK:       l.cik,
		Processed: l.Processed(),
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrLedgerIO, err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %w", ErrLedgerIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrLedgerIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write: %w", ErrLedgerIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close: %w", ErrLedgerIO, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %w", ErrLedgerIO, err)
	}
	return nil
}
