package store

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is the advisory lock file an Engine holds for the lifetime of a
// RUNNING run (SPEC_FULL §12). The lock lives alongside the sqlite file
// rather than in a socket directory, so no separate daemon is needed.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// LockPath returns the lock file path for one (workflow_name, run_id),
// sitting next to the sqlite database at dbDir.
func LockPath(dbDir, workflowName string, runID int64) string {
	return filepath.Join(dbDir, fmt.Sprintf(".%s.%d.run.lock", workflowName, runID))
}

// AcquireRunLock takes the exclusive lock for the duration of a live run.
// The Engine calls this right after CreateRun and holds it (via Release)
// until the run reaches a terminal status.
func AcquireRunLock(dbDir, workflowName string, runID int64) (*RunLock, error) {
	path := LockPath(dbDir, workflowName, runID)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("run lock %s is already held", path)
	}
	return &RunLock{flock: fl, path: path}, nil
}

func (l *RunLock) Release() error {
	return l.flock.Unlock()
}

// IsOrphaned probes whether a Run still marked RUNNING in the Store has no
// live holder of its lock file. A successful TryLock means the prior
// process released it (exited or crashed) — that Run is the orphan
// spec.md §7 describes, surfaced to the caller rather than silently
// repaired. The lock acquired here is released immediately; callers that
// want to resume orphan-repair work take it again via AcquireRunLock.
func IsOrphaned(dbDir, workflowName string, runID int64) (bool, error) {
	path := LockPath(dbDir, workflowName, runID)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probing run lock %s: %w", path, err)
	}
	if !locked {
		return false, nil
	}
	defer fl.Unlock()
	return true, nil
}
