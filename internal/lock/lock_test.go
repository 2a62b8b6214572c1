package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

func TestPrefixLock_Path(t *testing.T) {
	l := New("/var/lib/corpusctl/locks", "contoso/hr")

	assert.Equal(t, filepath.Join("/var/lib/corpusctl/locks", "contoso_hr.lock"), l.Path())
	assert.False(t, l.Held())
}

func TestPrefixLock_TryAcquireExclusive(t *testing.T) {
	// Given: one holder of the hr lock
	dir := filepath.Join(t.TempDir(), "locks")
	first := New(dir, "hr")
	require.NoError(t, first.TryAcquire())
	defer func() { _ = first.Release() }()

	// When: a second lock on the same prefix tries
	second := New(dir, "hr")
	err := second.TryAcquire()

	// Then: it is refused as locked
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeResourceLocked, cerrors.GetCode(err))
	assert.False(t, second.Held())

	// And: another prefix is unaffected
	other := New(dir, "finance")
	require.NoError(t, other.TryAcquire())
	require.NoError(t, other.Release())
}

func TestPrefixLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, "hr")
	require.NoError(t, first.TryAcquire())
	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "double release is a no-op")

	second := New(dir, "hr")
	require.NoError(t, second.TryAcquire())
	assert.True(t, second.Held())
	require.NoError(t, second.Release())
}

func TestPrefixLock_AcquireWaitsForRelease(t *testing.T) {
	// Given: a held lock released shortly
	dir := t.TempDir()
	first := New(dir, "hr")
	require.NoError(t, first.TryAcquire())
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = first.Release()
	}()

	// When: acquiring with a generous deadline
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second := New(dir, "hr")
	err := second.Acquire(ctx)

	// Then: it gets the lock
	require.NoError(t, err)
	assert.True(t, second.Held())
	require.NoError(t, second.Release())
}

func TestPrefixLock_AcquireGivesUpOnContext(t *testing.T) {
	dir := t.TempDir()
	first := New(dir, "hr")
	require.NoError(t, first.TryAcquire())
	defer func() { _ = first.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := New(dir, "hr").Acquire(ctx)

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeResourceLocked, cerrors.GetCode(err))
}
