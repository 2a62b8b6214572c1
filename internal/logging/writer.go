package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Rotation bounds the debug log on disk.
type Rotation struct {
	// MaxBytes is the live file size that triggers a rotation. Zero rotates
	// before every write into a non-empty file.
	MaxBytes int64
	// Keep is the number of rotated generations (debug.log.1 .. .Keep) retained.
	Keep int
	// SyncEachWrite fsyncs after every record so `corpusctl logs` and
	// `tail -f` see a provisioning run while it is still polling.
	SyncEachWrite bool
}

// RotationFromMB builds a Rotation from the megabyte and file counts used in
// configuration, filling in defaults for non-positive values.
func RotationFromMB(maxSizeMB, keep int) Rotation {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if keep <= 0 {
		keep = defaultMaxFiles
	}
	return Rotation{
		MaxBytes:      int64(maxSizeMB) << 20,
		Keep:          keep,
		SyncEachWrite: true,
	}
}

const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// FileSink is the size-rotated JSON log file behind --debug and
// logging.file. It is safe for concurrent use.
type FileSink struct {
	path string
	rot  Rotation

	mu   sync.Mutex
	file *os.File
	size int64
	// rotateErr is the first failed rotation. It is reported once; the sink
	// keeps appending to the live file afterwards.
	rotateErr error
}

// OpenFileSink opens path for appending, creating its directory.
func OpenFileSink(path string, rot Rotation) (*FileSink, error) {
	if rot.Keep < 1 {
		rot.Keep = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	s := &FileSink{path: path, rot: rot}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the live log file.
func (s *FileSink) Path() string { return s.path }

// Write appends p, rotating first when p would push the live file past
// MaxBytes.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size > 0 && s.size+int64(len(p)) > s.rot.MaxBytes {
		if err := s.rotate(); err != nil && s.rotateErr == nil {
			s.rotateErr = err
			_, _ = fmt.Fprintf(os.Stderr, "corpusctl: debug log rotation failed, appending to %s: %v\n", s.path, err)
		}
	}
	if s.file == nil {
		// A failed rotation can leave the live file closed.
		if err := s.open(); err != nil {
			return 0, err
		}
	}

	n, err := s.file.Write(p)
	s.size += int64(n)
	if err == nil && s.rot.SyncEachWrite {
		_ = s.file.Sync()
	}
	return n, err
}

// Sync flushes the live file.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close flushes and closes the live file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	_ = s.file.Sync()
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	s.file, s.size = f, info.Size()
	return nil
}

// rotate shifts generations up by one, dropping the oldest, and reopens an
// empty live file: debug.log -> debug.log.1 -> ... -> debug.log.Keep.
func (s *FileSink) rotate() error {
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	if err := os.Remove(generation(s.path, s.rot.Keep)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to drop oldest log: %w", err)
	}
	for n := s.rot.Keep - 1; n >= 1; n-- {
		if err := os.Rename(generation(s.path, n), generation(s.path, n+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to shift log generation %d: %w", n, err)
		}
	}
	if err := os.Rename(s.path, generation(s.path, 1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return s.open()
}

func generation(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}
