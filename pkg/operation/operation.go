// Package operation wires the probe, selector, rewriter, backup, and safety
// tracker into a single batch run.
package operation

import (
	"io"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/backup"
	"github.com/walteh/fixrc/pkg/candidate"
	"github.com/walteh/fixrc/pkg/config"
	"github.com/walteh/fixrc/pkg/log"
	"github.com/walteh/fixrc/pkg/probe"
	"github.com/walteh/fixrc/pkg/rewrite"
	"github.com/walteh/fixrc/pkg/runlog"
	"github.com/walteh/fixrc/pkg/safety"
	"github.com/walteh/fixrc/pkg/status"
	"github.com/walteh/fixrc/pkg/validate"
)

// 🔧 Options contains everything a run needs
type Options struct {
	// Config is the loaded fixrc configuration
	Config *config.Config
	// Probe is the issue-count oracle
	Probe probe.Probe
	// Rules are the compiled rewrite rules, in application order
	Rules []rewrite.Rule
	// Selector picks and bounds the batch
	Selector *candidate.Selector
	// Backup is the snapshot/rollback strategy
	Backup backup.Strategy
	// Console receives user-facing output
	Console *log.Logger
	// DiffWriter receives change previews in verbose/dry-run mode
	DiffWriter io.Writer

	// DryRun disables all writes, backups, and the post-batch probe
	DryRun bool
	// Verbose enables per-file diff previews
	Verbose bool
	// MaxFiles overrides the safety-recommended batch size when > 0
	MaxFiles int
	// StaticFiles, when set, bypasses probe-driven selection entirely
	StaticFiles []string
}

// 🎯 Outcome is everything a run produced
type Outcome struct {
	Result  runlog.RunResult
	Metrics safety.Metrics
	Verdict validate.Verdict
	Report  status.Report
	Aborted bool
}

// 🏃 RunOperation executes one validate/rollback batch
type RunOperation struct {
	opts Options
}

// 🏭 New creates a run operation with the given options
func New(opts Options) (*RunOperation, error) {
	if opts.Config == nil {
		return nil, errors.Errorf("config is required")
	}
	if opts.Probe == nil {
		return nil, errors.Errorf("probe is required")
	}
	if len(opts.Rules) == 0 {
		return nil, errors.Errorf("at least one rule is required")
	}
	if opts.Selector == nil {
		return nil, errors.Errorf("selector is required")
	}
	if opts.Backup == nil && !opts.DryRun {
		return nil, errors.Errorf("backup strategy is required for live runs")
	}
	if opts.Console == nil {
		return nil, errors.Errorf("console logger is required")
	}
	return &RunOperation{opts: opts}, nil
}
