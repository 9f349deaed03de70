// Package candidate picks the bounded, ordered batch of files a run is
// allowed to touch.
package candidate

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Outcome records what happened to a file during a run
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeModified
	OutcomeUnchanged
	OutcomeSkipped
	OutcomeRolledBack
)

// String returns a string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeModified:
		return "modified"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRolledBack:
		return "rolled back"
	default:
		return "pending"
	}
}

// FileTarget is one file selected for this run
type FileTarget struct {
	Path            string
	PriorErrorCount int
	LastOutcome     Outcome
}

// Selector filters and orders candidate files
type Selector struct {
	root    string
	include []string
	exclude []string
}

// NewSelector creates a selector rooted at dir with optional glob filters
func NewSelector(root string, include, exclude []string) *Selector {
	if root == "" {
		root = "."
	}
	return &Selector{
		root:    filepath.Clean(root),
		include: include,
		exclude: exclude,
	}
}

// FromCounts selects up to maxFiles paths ordered by descending error count,
// ties broken by path. Duplicates and paths missing on disk are dropped.
func (s *Selector) FromCounts(ctx context.Context, perFile map[string]int, maxFiles int) []FileTarget {
	paths := make([]string, 0, len(perFile))
	for path := range perFile {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		if perFile[paths[i]] != perFile[paths[j]] {
			return perFile[paths[i]] > perFile[paths[j]]
		}
		return paths[i] < paths[j]
	})

	targets := make([]FileTarget, 0, maxFiles)
	for _, path := range paths {
		if maxFiles > 0 && len(targets) >= maxFiles {
			break
		}
		if !s.admit(ctx, path) {
			continue
		}
		targets = append(targets, FileTarget{Path: path, PriorErrorCount: perFile[path]})
	}
	return targets
}

// FromStatic selects from an explicit allow-list, preserving caller order.
// This is a first-class input mode, not a fallback special case.
func (s *Selector) FromStatic(ctx context.Context, paths []string, maxFiles int) []FileTarget {
	seen := map[string]bool{}
	targets := make([]FileTarget, 0, len(paths))
	for _, path := range paths {
		if maxFiles > 0 && len(targets) >= maxFiles {
			break
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		if !s.admit(ctx, path) {
			continue
		}
		targets = append(targets, FileTarget{Path: path})
	}
	return targets
}

// admit checks existence and glob filters for one path
func (s *Selector) admit(ctx context.Context, path string) bool {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(s.abs(path))
	if err != nil || info.IsDir() {
		// Races with prior edits are expected; skip silently.
		logger.Debug().Str("path", path).Msg("candidate missing on disk, skipping")
		return false
	}

	rel := filepath.ToSlash(path)
	if len(s.include) > 0 && !matchAny(s.include, rel) {
		return false
	}
	if matchAny(s.exclude, rel) {
		return false
	}
	return true
}

func (s *Selector) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
