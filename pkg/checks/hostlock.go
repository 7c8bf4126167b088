package checks

import (
	"fmt"

	"github.com/gofrs/flock"
)

// HostLock is an exclusive lock on a local file, held for the length of a
// run. It complements CheckSingleInstance for invocations on the same host
// that have not connected yet.
type HostLock struct {
	lock *flock.Flock
}

// AcquireHostLock takes the lock without waiting. An empty path disables
// the lock and returns a nil *HostLock, which is safe to Release.
func AcquireHostLock(path string) (*HostLock, error) {
	if path == "" {
		return nil, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: lock %s is held by another process", ErrAlreadyRunning, path)
	}
	return &HostLock{lock: lock}, nil
}

func (h *HostLock) Path() string {
	if h == nil {
		return ""
	}
	return h.lock.Path()
}

func (h *HostLock) Release() error {
	if h == nil {
		return nil
	}
	return h.lock.Unlock()
}
