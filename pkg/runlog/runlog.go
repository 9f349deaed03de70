// Package runlog keeps the append-only history of run results for human
// audit. Entries are never mutated after write.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/probe"
)

// RunResult is the immutable record of one run
type RunResult struct {
	Timestamp          time.Time `json:"timestamp"`
	DryRun             bool      `json:"dry_run,omitempty"`
	FilesAttempted     int       `json:"files_attempted"`
	FilesModified      int       `json:"files_modified"`
	FixesApplied       int       `json:"fixes_applied"`
	ErrorsBefore       int       `json:"errors_before"`
	ErrorsAfter        int       `json:"errors_after"`
	RolledBack         []string  `json:"rolled_back,omitempty"`
	CorruptionDetected bool      `json:"corruption_detected,omitempty"`
	Aborted            bool      `json:"aborted,omitempty"`
}

// Regressed reports whether this run ended in a batch rollback
func (rr RunResult) Regressed() bool {
	return len(rr.RolledBack) > 0
}

// Unknown reports whether the run never established a trustworthy count
func (rr RunResult) Unknown() bool {
	return rr.ErrorsBefore == probe.UnknownTotal || rr.ErrorsAfter == probe.UnknownTotal
}

// Append writes one timestamped JSON document into dir. One document per
// run keeps appends from ever rewriting history.
func Append(ctx context.Context, dir string, rr RunResult) error {
	logger := zerolog.Ctx(ctx)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("creating run log dir: %w", err)
	}

	data, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return errors.Errorf("marshaling run result: %w", err)
	}

	name := fmt.Sprintf("run-%s.json", rr.Timestamp.UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Errorf("creating run log entry: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Errorf("writing run log entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return errors.Errorf("closing run log entry: %w", err)
	}

	logger.Debug().Str("path", path).Msg("run result appended")
	return nil
}

// Summary is the aggregate view over the run history
type Summary struct {
	Runs           int
	DryRuns        int
	FilesModified  int
	FixesApplied   int
	Regressions    int
	Corruptions    int
	NetErrorDelta  int // sum of (after - before) across trusted live runs
	FirstRun       time.Time
	LastRun        time.Time
}

// Summarize reads the history back. This is the only programmatic consumer
// of the run log; everything else treats it as write-only.
func Summarize(ctx context.Context, dir string) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, nil
		}
		return Summary{}, errors.Errorf("reading run log dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var summary Summary
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return Summary{}, errors.Errorf("reading run log entry %s: %w", name, err)
		}
		var rr RunResult
		if err := json.Unmarshal(data, &rr); err != nil {
			return Summary{}, errors.Errorf("parsing run log entry %s: %w", name, err)
		}

		summary.Runs++
		if rr.DryRun {
			summary.DryRuns++
		}
		summary.FilesModified += rr.FilesModified
		summary.FixesApplied += rr.FixesApplied
		if rr.Regressed() {
			summary.Regressions++
		}
		if rr.CorruptionDetected {
			summary.Corruptions++
		}
		if !rr.DryRun && !rr.Unknown() {
			summary.NetErrorDelta += rr.ErrorsAfter - rr.ErrorsBefore
		}
		if summary.FirstRun.IsZero() || rr.Timestamp.Before(summary.FirstRun) {
			summary.FirstRun = rr.Timestamp
		}
		if rr.Timestamp.After(summary.LastRun) {
			summary.LastRun = rr.Timestamp
		}
	}

	return summary, nil
}
