package operation

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/backup"
	"github.com/walteh/fixrc/pkg/candidate"
	"github.com/walteh/fixrc/pkg/log"
	"github.com/walteh/fixrc/pkg/probe"
	"github.com/walteh/fixrc/pkg/rewrite"
	"github.com/walteh/fixrc/pkg/runlog"
	"github.com/walteh/fixrc/pkg/safety"
	"github.com/walteh/fixrc/pkg/status"
	"github.com/walteh/fixrc/pkg/validate"
)

// 🏃 Execute runs one batch: baseline probe, selection, rewrite, validation,
// and commit or rollback. Metrics are passed in and returned updated; the
// caller owns loading and persisting them.
func (o *RunOperation) Execute(ctx context.Context, metrics safety.Metrics) (Outcome, error) {
	logger := zerolog.Ctx(ctx)
	console := o.opts.Console
	startedAt := time.Now()

	// BASELINE_PROBE
	baseline, err := o.opts.Probe.Count(ctx, nil)
	if err != nil {
		return Outcome{}, errors.Errorf("baseline probe: %w", err)
	}
	if baseline.Unknown() {
		// ABORT: never mutate files without a trustworthy baseline.
		console.Error("baseline probe failed, aborting before any mutation")
		rr := runlog.RunResult{
			Timestamp:    startedAt,
			DryRun:       o.opts.DryRun,
			ErrorsBefore: probe.UnknownTotal,
			ErrorsAfter:  probe.UnknownTotal,
			Aborted:      true,
		}
		report := status.Report{DryRun: o.opts.DryRun, Aborted: true, Verdict: validate.VerdictUnknown.String()}
		return Outcome{Result: rr, Metrics: metrics, Verdict: validate.VerdictUnknown, Report: report, Aborted: true}, nil
	}

	// SELECT_CANDIDATES
	maxFiles := o.opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = metrics.RecommendedBatchSize
	}
	if maxFiles <= 0 {
		maxFiles = safety.Defaults().RecommendedBatchSize
	}

	var targets []candidate.FileTarget
	switch {
	case len(o.opts.StaticFiles) > 0:
		targets = o.opts.Selector.FromStatic(ctx, o.opts.StaticFiles, maxFiles)
	case len(o.opts.Config.Candidates.Files) > 0:
		targets = o.opts.Selector.FromStatic(ctx, o.opts.Config.Candidates.Files, maxFiles)
	default:
		targets = o.opts.Selector.FromCounts(ctx, baseline.PerFile, maxFiles)
	}

	console.StartBatch(ctx, len(targets), baseline.Total, o.opts.DryRun)

	// Per-batch bookkeeping. Handles exist only for files actually written.
	var handles []backup.Handle
	var corruption bool
	filesModified := 0
	fixesApplied := 0

	for i := range targets {
		t := &targets[i]

		rolled, modified, fixes := o.processFile(ctx, t, &handles)
		if rolled {
			corruption = true
			break
		}
		if modified {
			filesModified++
			fixesApplied += fixes
		}
	}

	// PERIODIC_PROBE + VALIDATE
	after := baseline
	verdict := validate.VerdictOK
	var rolledBack []string

	switch {
	case corruption:
		verdict = validate.VerdictRegressed
		rolledBack = o.rollback(ctx, handles)
	case o.opts.DryRun, filesModified == 0:
		// Nothing changed on disk, so the probe is not re-invoked.
	default:
		after, err = o.opts.Probe.Count(ctx, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("post-batch probe failed")
			after = probe.Result{Total: probe.UnknownTotal}
		}
		verdict = validate.Validate(baseline.Total, after.Total)
		if verdict == validate.VerdictRegressed {
			rolledBack = o.rollback(ctx, handles)
		} else {
			o.discard(ctx, handles)
		}
	}

	// Mark rolled-back files so the report reflects the final on-disk truth.
	if len(rolledBack) > 0 {
		restored := map[string]bool{}
		for _, p := range rolledBack {
			restored[p] = true
		}
		for i := range targets {
			if restored[o.resolve(targets[i].Path)] || restored[targets[i].Path] {
				targets[i].LastOutcome = candidate.OutcomeRolledBack
				console.LogFileOperation(ctx, log.FileOperation{
					Path:         targets[i].Path,
					Outcome:      candidate.OutcomeRolledBack.String(),
					IsRolledBack: true,
				})
			}
		}
	}

	// UPDATE_SCORE
	rr := runlog.RunResult{
		Timestamp:          startedAt,
		DryRun:             o.opts.DryRun,
		FilesAttempted:     len(targets),
		FilesModified:      filesModified,
		FixesApplied:       fixesApplied,
		ErrorsBefore:       baseline.Total,
		ErrorsAfter:        after.Total,
		RolledBack:         rolledBack,
		CorruptionDetected: corruption,
	}
	metrics = safety.Update(metrics, rr)

	// REPORT
	report := status.Report{
		DryRun:         o.opts.DryRun,
		Verdict:        verdict.String(),
		FilesAttempted: rr.FilesAttempted,
		FilesModified:  rr.FilesModified,
		FixesApplied:   rr.FixesApplied,
		ErrorsBefore:   rr.ErrorsBefore,
		ErrorsAfter:    rr.ErrorsAfter,
		RolledBack:     rolledBack,
		SafetyScore:    metrics.CurrentSafetyScore,
		NextBatchSize:  metrics.RecommendedBatchSize,
	}

	return Outcome{Result: rr, Metrics: metrics, Verdict: verdict, Report: report}, nil
}

// processFile rewrites one file. Per-file I/O errors skip the file without
// failing the batch; a corruption hit is fatal to the whole batch.
func (o *RunOperation) processFile(ctx context.Context, t *candidate.FileTarget, handles *[]backup.Handle) (corrupted, modified bool, fixes int) {
	logger := zerolog.Ctx(ctx)
	console := o.opts.Console
	fullPath := o.resolve(t.Path)

	skip := func(err error, why string) {
		t.LastOutcome = candidate.OutcomeSkipped
		logger.Warn().Err(err).Str("path", t.Path).Msg(why)
		console.LogFileOperation(ctx, log.FileOperation{
			Path:         t.Path,
			Outcome:      candidate.OutcomeSkipped.String(),
			ErrorsBefore: t.PriorErrorCount,
			IsSkipped:    true,
		})
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		skip(err, "file unreadable, excluded from batch")
		return false, false, 0
	}
	before := string(data)

	applicable := make([]rewrite.Rule, 0, len(o.opts.Rules))
	for _, rule := range o.opts.Rules {
		if rule.MatchesFile(t.Path) {
			applicable = append(applicable, rule)
		}
	}

	result, err := rewrite.Apply(before, applicable)
	if err != nil {
		skip(err, "rewrite failed, excluded from batch")
		return false, false, 0
	}

	if !result.WasModified {
		t.LastOutcome = candidate.OutcomeUnchanged
		console.LogFileOperation(ctx, log.FileOperation{
			Path:         t.Path,
			Outcome:      candidate.OutcomeUnchanged.String(),
			ErrorsBefore: t.PriorErrorCount,
		})
		return false, false, 0
	}

	if err := validate.CheckCorruption(before, result.Content); err != nil {
		console.Errorf("corruption suspected in %s: %s", t.Path, err)
		return true, false, 0
	}

	if o.opts.Verbose && o.opts.DiffWriter != nil {
		status.RenderDiff(o.opts.DiffWriter, t.Path, before, result.Content)
	}

	if !o.opts.DryRun {
		// Snapshot strictly before the write; do not proceed until durable.
		handle, err := o.opts.Backup.Snapshot(ctx, fullPath)
		if err != nil {
			skip(err, "snapshot failed, excluded from batch")
			return false, false, 0
		}
		if err := os.WriteFile(fullPath, []byte(result.Content), 0o644); err != nil {
			// A failed write may have truncated the file; put it back.
			if rerr := o.opts.Backup.Restore(ctx, handle); rerr != nil {
				logger.Error().Err(rerr).Str("path", t.Path).Msg("restore after failed write also failed")
			}
			skip(err, "file unwritable, excluded from batch")
			return false, false, 0
		}
		*handles = append(*handles, handle)
	}

	t.LastOutcome = candidate.OutcomeModified
	console.LogFileOperation(ctx, log.FileOperation{
		Path:         t.Path,
		Outcome:      candidate.OutcomeModified.String(),
		Replacements: result.FixesApplied(),
		ErrorsBefore: t.PriorErrorCount,
		IsModified:   true,
	})
	return false, true, result.FixesApplied()
}

// rollback restores every touched file, newest first. All-or-nothing: a
// single regression reverts the whole batch.
func (o *RunOperation) rollback(ctx context.Context, handles []backup.Handle) []string {
	logger := zerolog.Ctx(ctx)

	restored := make([]string, 0, len(handles))
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if err := o.opts.Backup.Restore(ctx, h); err != nil {
			logger.Error().Err(err).Str("path", h.OriginalPath).Msg("rollback failed, backup left on disk for manual recovery")
			continue
		}
		restored = append(restored, h.OriginalPath)
	}
	return restored
}

// discard drops committed snapshots
func (o *RunOperation) discard(ctx context.Context, handles []backup.Handle) {
	logger := zerolog.Ctx(ctx)
	for _, h := range handles {
		if err := o.opts.Backup.Discard(ctx, h); err != nil {
			logger.Debug().Err(err).Str("path", h.OriginalPath).Msg("discarding snapshot failed")
		}
	}
}

func (o *RunOperation) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.opts.Config.Candidates.Root, path)
}
