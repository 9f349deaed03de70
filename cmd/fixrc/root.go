// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/backup"
	"github.com/walteh/fixrc/pkg/candidate"
	"github.com/walteh/fixrc/pkg/config"
	"github.com/walteh/fixrc/pkg/lockfile"
	"github.com/walteh/fixrc/pkg/log"
	"github.com/walteh/fixrc/pkg/operation"
	"github.com/walteh/fixrc/pkg/probe"
	"github.com/walteh/fixrc/pkg/rewrite"
	"github.com/walteh/fixrc/pkg/runlog"
	"github.com/walteh/fixrc/pkg/safety"
)

var (
	// Flags
	configFile string
	dryRun     bool
	apply      bool
	maxFiles   int
	files      []string
	verbose    bool
	debug      bool
)

// newRootCommand builds the fixrc CLI
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fixrc",
		Short: "Safe batch codemod runner",
		Long: `fixrc applies ordered text rewrite rules to a bounded batch of files,
validates the result against an external checker, and rolls the whole batch
back if the issue count regressed. Dry-run is the default; pass --apply to
write anything.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", ".fixrc.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	root.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing (the default)")
	root.Flags().BoolVar(&apply, "apply", false, "actually write changes to disk")
	root.Flags().BoolVar(&apply, "live", false, "alias for --apply")
	root.Flags().IntVar(&maxFiles, "max-files", 0, "override the batch size (default: safety recommendation)")
	root.Flags().StringArrayVar(&files, "file", nil, "explicit file to process (repeatable, bypasses probe-driven selection)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "show per-file change previews")

	root.AddCommand(newStatsCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// setupContext wires zerolog and the console logger into the context
func setupContext(ctx context.Context) (context.Context, *log.Logger) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	ctx = logger.WithContext(ctx)

	console := log.New(os.Stdout, level)
	ctx = log.NewContext(ctx, console)
	return ctx, console
}

// runBatch is the root action: one full probe/rewrite/validate cycle
func runBatch(ctx context.Context) error {
	ctx, console := setupContext(ctx)

	if dryRun && apply {
		return errors.Errorf("--dry-run and --apply are mutually exclusive")
	}
	// Safe by default: writes require an explicit --apply.
	live := apply

	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	if maxFiles == 0 {
		maxFiles = cfg.MaxFiles
	}

	// Concurrent runs race the metrics file and backups; refuse them.
	lock, err := lockfile.Acquire(ctx, filepath.Join(cfg.StateDir, "fixrc.lock"))
	if err != nil {
		return errors.Errorf("acquiring run lock: %w", err)
	}
	defer lock.Release()

	metricsPath := filepath.Join(cfg.StateDir, "metrics.json")
	metrics, err := safety.Load(ctx, metricsPath)
	if err != nil {
		return errors.Errorf("loading safety metrics: %w", err)
	}

	probes := make([]probe.Probe, 0, len(cfg.Probes))
	for _, pc := range cfg.Probes {
		p, err := probe.NewCommandProbe(pc)
		if err != nil {
			return errors.Errorf("building probe: %w", err)
		}
		probes = append(probes, p.WithDir(cfg.Candidates.Root))
	}

	rules, err := rewrite.FromConfig(cfg.Rules)
	if err != nil {
		return errors.Errorf("compiling rules: %w", err)
	}

	strategy, err := newBackupStrategy(cfg)
	if err != nil {
		return errors.Errorf("building backup strategy: %w", err)
	}

	op, err := operation.New(operation.Options{
		Config:      cfg,
		Probe:       probe.NewMultiProbe(probes...),
		Rules:       rules,
		Selector:    candidate.NewSelector(cfg.Candidates.Root, cfg.Candidates.Include, cfg.Candidates.Exclude),
		Backup:      strategy,
		Console:     console,
		DiffWriter:  os.Stdout,
		DryRun:      !live,
		Verbose:     verbose,
		MaxFiles:    maxFiles,
		StaticFiles: files,
	})
	if err != nil {
		return errors.Errorf("building run: %w", err)
	}

	mode := "dry-run"
	if live {
		mode = "live"
	}
	console.Header(mode + " batch from " + configFile)

	outcome, err := op.Execute(ctx, metrics)
	if err != nil {
		return errors.Errorf("executing run: %w", err)
	}

	if err := runlog.Append(ctx, filepath.Join(cfg.StateDir, "runs"), outcome.Result); err != nil {
		return errors.Errorf("appending run log: %w", err)
	}
	if err := safety.Save(ctx, metricsPath, outcome.Metrics); err != nil {
		return errors.Errorf("saving safety metrics: %w", err)
	}

	outcome.Report.Render(os.Stdout)

	if outcome.Aborted {
		return errors.Errorf("could not establish a baseline issue count")
	}
	if outcome.Result.Regressed() || outcome.Result.CorruptionDetected {
		return errors.Errorf("regression detected, batch rolled back")
	}
	return nil
}

// newBackupStrategy picks the configured rollback implementation
func newBackupStrategy(cfg *config.Config) (backup.Strategy, error) {
	switch cfg.Backup.Strategy {
	case "git_stash":
		return backup.NewGitStashStrategy(cfg.Candidates.Root)
	default:
		return backup.NewFileCopyStrategy(cfg.Backup.Dir), nil
	}
}
