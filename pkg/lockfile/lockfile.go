// Package lockfile guards against concurrent runs. The metrics file and
// backup directory have no locking of their own, so a second simultaneous
// invocation must be refused, not raced.
package lockfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Lock is a held run lock
type Lock struct {
	path string
}

type lockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Acquire takes the run lock at path. A lock held by a live process refuses
// the run; a lock left behind by a dead process is cleared and retaken.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	logger := zerolog.Ctx(ctx)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Errorf("creating lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			info := lockInfo{PID: os.Getpid(), StartedAt: time.Now()}
			data, merr := json.Marshal(info)
			if merr != nil {
				f.Close()
				os.Remove(path)
				return nil, errors.Errorf("marshaling lock info: %w", merr)
			}
			if _, werr := f.Write(data); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, errors.Errorf("writing lock file: %w", werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, errors.Errorf("closing lock file: %w", cerr)
			}
			logger.Debug().Str("path", path).Int("pid", info.PID).Msg("lock acquired")
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Errorf("creating lock file: %w", err)
		}

		// Lock exists: live or stale?
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, errors.Errorf("reading existing lock: %w", rerr)
		}
		var held lockInfo
		if jerr := json.Unmarshal(data, &held); jerr == nil && processAlive(held.PID) {
			return nil, errors.Errorf("another run is in progress (pid %d, started %s)",
				held.PID, held.StartedAt.Format(time.RFC3339))
		}

		logger.Warn().Str("path", path).Msg("clearing stale lock")
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, errors.Errorf("removing stale lock: %w", rerr)
		}
	}

	return nil, errors.Errorf("could not acquire lock at %s", path)
}

// Release drops the lock
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Errorf("removing lock file: %w", err)
	}
	return nil
}

// processAlive checks whether pid still refers to a running process
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
