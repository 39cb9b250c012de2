package organize

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// fileLock wraps a cross-platform advisory lock (flock on POSIX,
// LockFileEx on Windows). Release on every exit path.
type fileLock struct {
	fl *flock.Flock
}

// acquireLock obtains an exclusive lock on path, retrying every 25 ms
// until timeout. A timeout of 0 blocks indefinitely via a long deadline.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	if timeout <= 0 {
		timeout = time.Hour
	}
	fl := flock.New(path)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, kindErrorf(KindFileLocked, "lock %s: held by another process", path)
	}
	return &fileLock{fl: fl}, nil
}

// release unlocks. Safe on nil.
func (l *fileLock) release() {
	if l == nil || l.fl == nil {
		return
	}
	l.fl.Unlock() //nolint:errcheck
}
