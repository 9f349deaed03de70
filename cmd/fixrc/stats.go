package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/config"
	"github.com/walteh/fixrc/pkg/runlog"
	"github.com/walteh/fixrc/pkg/safety"
)

// newStatsCommand prints the accumulated safety metrics and run history
func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show accumulated safety metrics and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _ := setupContext(cmd.Context())

			cfg, err := config.Load(ctx, configFile)
			if err != nil {
				return errors.Errorf("loading config: %w", err)
			}

			metrics, err := safety.Load(ctx, filepath.Join(cfg.StateDir, "metrics.json"))
			if err != nil {
				return errors.Errorf("loading safety metrics: %w", err)
			}

			summary, err := runlog.Summarize(ctx, filepath.Join(cfg.StateDir, "runs"))
			if err != nil {
				return errors.Errorf("summarizing run log: %w", err)
			}

			bold := color.New(color.Bold)
			faint := color.New(color.Faint)

			fmt.Fprintln(os.Stdout, bold.Sprint("safety metrics"))
			fmt.Fprintf(os.Stdout, "  total runs            %d\n", metrics.TotalRuns)
			fmt.Fprintf(os.Stdout, "  successful runs       %d\n", metrics.SuccessfulRuns)
			fmt.Fprintf(os.Stdout, "  regressions detected  %d\n", metrics.RegressionsDetected)
			fmt.Fprintf(os.Stdout, "  corruptions detected  %d\n", metrics.CorruptionsDetected)
			fmt.Fprintf(os.Stdout, "  safety score          %.1f / 100\n", metrics.CurrentSafetyScore)
			fmt.Fprintf(os.Stdout, "  next batch size       %d files\n", metrics.RecommendedBatchSize)

			fmt.Fprintln(os.Stdout)
			fmt.Fprintln(os.Stdout, bold.Sprint("run history"))
			fmt.Fprintf(os.Stdout, "  runs logged           %d %s\n", summary.Runs,
				faint.Sprintf("(%d dry)", summary.DryRuns))
			fmt.Fprintf(os.Stdout, "  files modified        %d\n", summary.FilesModified)
			fmt.Fprintf(os.Stdout, "  fixes applied         %d\n", summary.FixesApplied)
			fmt.Fprintf(os.Stdout, "  net issue delta       %d\n", summary.NetErrorDelta)
			if !summary.LastRun.IsZero() {
				fmt.Fprintf(os.Stdout, "  last run              %s\n", summary.LastRun.Format(time.RFC3339))
			}

			return nil
		},
	}
}
