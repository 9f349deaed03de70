package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// context kept around each change in the preview
const contextRunes = 40

// RenderDiff writes a compact change preview for one file. Used in verbose
// and dry-run output so the operator can eyeball what a rule actually did.
func RenderDiff(w io.Writer, path, before, after string) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	fmt.Fprintf(w, "    %s\n", color.New(color.Bold, color.Faint).Sprint("--- "+path))

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(color.New(color.FgGreen).Sprint(d.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(color.New(color.FgRed, color.CrossedOut).Sprint(d.Text))
		case diffmatchpatch.DiffEqual:
			b.WriteString(trimEqual(d.Text))
		}
	}

	for _, line := range strings.Split(b.String(), "\n") {
		if strings.TrimSpace(stripEllipsis(line)) == "" {
			continue
		}
		fmt.Fprintf(w, "    %s\n", line)
	}
}

// trimEqual collapses long unchanged stretches to their edges
func trimEqual(text string) string {
	runes := []rune(text)
	if len(runes) <= 2*contextRunes {
		return text
	}
	head := string(runes[:contextRunes])
	tail := string(runes[len(runes)-contextRunes:])
	return head + color.New(color.Faint).Sprint(" … ") + tail
}

func stripEllipsis(line string) string {
	return strings.ReplaceAll(line, "…", "")
}
