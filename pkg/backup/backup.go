// Package backup snapshots files before mutation and restores them on
// rollback. Two interchangeable strategies exist: sibling file copies and
// git object storage.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Handle identifies one snapshot. Exactly one of SnapshotPath or StashRef
// is set, depending on the strategy that created it.
type Handle struct {
	OriginalPath string    `json:"original_path"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
	StashRef     string    `json:"stash_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Strategy is the rollback contract. Snapshot must be durable before it
// returns; Restore must write back the exact original bytes.
type Strategy interface {
	Snapshot(ctx context.Context, path string) (Handle, error)
	Restore(ctx context.Context, handle Handle) error
	Discard(ctx context.Context, handle Handle) error
}

// FileCopyStrategy snapshots by copying bytes into a backup directory with
// a collision-free timestamped name.
type FileCopyStrategy struct {
	dir string
}

// NewFileCopyStrategy creates a strategy writing snapshots under dir
func NewFileCopyStrategy(dir string) *FileCopyStrategy {
	return &FileCopyStrategy{dir: dir}
}

// Snapshot copies the file's bytes and fsyncs before returning, so the
// caller may overwrite the original as soon as this returns.
func (s *FileCopyStrategy) Snapshot(ctx context.Context, path string) (Handle, error) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return Handle{}, errors.Errorf("reading original: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Handle{}, errors.Errorf("creating backup dir: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s.%d.orig", filepath.Base(path), now.UnixNano())
	snapshotPath := filepath.Join(s.dir, name)

	f, err := os.OpenFile(snapshotPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Handle{}, errors.Errorf("creating snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return Handle{}, errors.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return Handle{}, errors.Errorf("syncing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return Handle{}, errors.Errorf("closing snapshot: %w", err)
	}

	logger.Debug().Str("path", path).Str("snapshot", snapshotPath).Msg("snapshot created")

	return Handle{
		OriginalPath: path,
		SnapshotPath: snapshotPath,
		CreatedAt:    now,
	}, nil
}

// Restore writes the snapshot bytes back to the original path
func (s *FileCopyStrategy) Restore(ctx context.Context, handle Handle) error {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(handle.SnapshotPath)
	if err != nil {
		return errors.Errorf("reading snapshot: %w", err)
	}
	if err := os.WriteFile(handle.OriginalPath, data, 0o644); err != nil {
		return errors.Errorf("restoring original: %w", err)
	}

	logger.Debug().Str("path", handle.OriginalPath).Msg("restored from snapshot")
	return nil
}

// Discard removes the snapshot file. Discard failures are not fatal to a
// run; the stray snapshot is left for manual cleanup.
func (s *FileCopyStrategy) Discard(ctx context.Context, handle Handle) error {
	if err := os.Remove(handle.SnapshotPath); err != nil {
		return errors.Errorf("removing snapshot: %w", err)
	}
	return nil
}
