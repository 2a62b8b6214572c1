// Package lock serializes provisioning and teardown of a prefix across
// corpusctl processes.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// DefaultRetryDelay is how often Acquire retries a held lock.
const DefaultRetryDelay = 250 * time.Millisecond

// PrefixLock is an exclusive cross-process lock on one prefix.
type PrefixLock struct {
	prefix string
	path   string
	flock  *flock.Flock
	locked bool
}

var unsafeChars = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "..", "_")

// New returns the lock for prefix. The lock file is <dir>/<prefix>.lock.
func New(dir, prefix string) *PrefixLock {
	path := filepath.Join(dir, unsafeChars.Replace(prefix)+".lock")
	return &PrefixLock{
		prefix: prefix,
		path:   path,
		flock:  flock.New(path),
	}
}

// TryAcquire takes the lock without blocking. A lock held elsewhere is
// ErrCodeResourceLocked.
func (l *PrefixLock) TryAcquire() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return cerrors.InternalError("failed to acquire lock "+l.path, err)
	}
	if !ok {
		return l.heldError()
	}
	l.locked = true
	return nil
}

// Acquire blocks until the lock is taken or ctx is done.
func (l *PrefixLock) Acquire(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	ok, err := l.flock.TryLockContext(ctx, DefaultRetryDelay)
	if ctxErr := ctx.Err(); ctxErr != nil && !ok {
		return l.heldError()
	}
	if err != nil {
		return cerrors.InternalError("failed to acquire lock "+l.path, err)
	}
	if !ok {
		return l.heldError()
	}
	l.locked = true
	return nil
}

// Release releases the lock. It is safe to call on an unlocked PrefixLock.
func (l *PrefixLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return cerrors.InternalError("failed to release lock "+l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *PrefixLock) Path() string {
	return l.path
}

// Held reports whether this PrefixLock holds the lock.
func (l *PrefixLock) Held() bool {
	return l.locked
}

func (l *PrefixLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return cerrors.InternalError("failed to create lock directory", err)
	}
	return nil
}

func (l *PrefixLock) heldError() error {
	return cerrors.New(cerrors.ErrCodeResourceLocked,
		fmt.Sprintf("prefix %q is being provisioned or torn down by another process", l.prefix), nil).
		WithDetail("lock", l.path).
		WithSuggestion("Wait for the other run to finish, or remove the lock file if no run is active")
}
