// Package status renders the human-readable run report. The report always
// prints, in the same shape, for live and dry runs.
package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/walteh/fixrc/pkg/probe"
)

// Report is the end-of-run summary shown to the operator
type Report struct {
	DryRun         bool
	Aborted        bool
	Verdict        string
	FilesAttempted int
	FilesModified  int
	FixesApplied   int
	ErrorsBefore   int
	ErrorsAfter    int
	RolledBack     []string
	SafetyScore    float64
	NextBatchSize  int
}

// Render writes the summary block
func (r Report) Render(w io.Writer) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	fmt.Fprintln(w)
	if r.DryRun {
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("run summary"), faint.Sprint("(dry-run, nothing written)"))
	} else {
		fmt.Fprintln(w, bold.Sprint("run summary"))
	}

	if r.Aborted {
		fmt.Fprintf(w, "  %s no trustworthy baseline, no files touched\n",
			color.New(color.FgRed).Sprint("aborted:"))
		return
	}

	fmt.Fprintf(w, "  files attempted   %d\n", r.FilesAttempted)
	fmt.Fprintf(w, "  files modified    %d\n", r.FilesModified)
	fmt.Fprintf(w, "  fixes applied     %d\n", r.FixesApplied)
	fmt.Fprintf(w, "  issues before     %s\n", formatCount(r.ErrorsBefore))
	fmt.Fprintf(w, "  issues after      %s\n", formatCount(r.ErrorsAfter))

	switch {
	case len(r.RolledBack) > 0:
		fmt.Fprintf(w, "  %s %s\n",
			color.New(color.FgRed).Sprint("rolled back:"),
			strings.Join(r.RolledBack, ", "))
	case r.Verdict != "":
		fmt.Fprintf(w, "  verdict           %s\n", colorVerdict(r.Verdict))
	}

	if r.NextBatchSize > 0 {
		fmt.Fprintf(w, "  %s score %.1f, next batch up to %d files\n",
			faint.Sprint("safety:"), r.SafetyScore, r.NextBatchSize)
	}
}

func formatCount(n int) string {
	if n == probe.UnknownTotal {
		return color.New(color.FgYellow).Sprint("unknown")
	}
	return fmt.Sprintf("%d", n)
}

func colorVerdict(v string) string {
	switch v {
	case "ok":
		return color.New(color.FgGreen).Sprint(v)
	case "regressed":
		return color.New(color.FgRed).Sprint(v)
	default:
		return color.New(color.FgYellow).Sprint(v)
	}
}
