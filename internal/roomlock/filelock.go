// SPDX-License-Identifier: MIT

//go:build linux

// Package roomlock provides the single process-wide file lock that guards
// both on-disk files a ConfigStore owns: the recording config and the room
// URL list. Every write to either file happens while this lock is held, so
// ReplaceLine/DeleteLine-style read-mutate-rewrite cycles never race.
package roomlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultStaleThreshold is passed to isLockStale, which ignores it on
	// Linux: a lock file is stale only when the PID it names no longer
	// exists. The non-Linux fallback uses it as a lock-file age limit.
	DefaultStaleThreshold = 300 * time.Second

	// DefaultAcquireTimeout bounds how long Acquire will poll before giving up.
	DefaultAcquireTimeout = 30 * time.Second

	pollInterval = 100 * time.Millisecond
)

// FileLock is an advisory, PID-stamped lock file used to serialize writes to
// the config and room-list files across process restarts.
type FileLock struct {
	mu   sync.Mutex
	path string
	file *os.File
	pid  int
}

// New returns a FileLock bound to path. The lock is not acquired yet.
func New(path string) (*FileLock, error) {
	if path == "" {
		return nil, fmt.Errorf("roomlock: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("roomlock: create lock dir: %w", err)
		}
	}
	return &FileLock{path: path, pid: os.Getpid()}, nil
}

// Acquire blocks, polling every 100ms, until the lock is obtained or timeout
// elapses.
func (l *FileLock) Acquire(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.AcquireContext(ctx)
}

// AcquireContext blocks until the lock is obtained or ctx is done.
func (l *FileLock) AcquireContext(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("roomlock: acquire %s: %w", l.path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *FileLock) tryAcquire() (bool, error) {
	if isLockStale(l.path, DefaultStaleThreshold) {
		_ = os.Remove(l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("roomlock: open %s: %w", l.path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("roomlock: flock %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.Seek(0, 0)
		_, _ = f.WriteString(strconv.Itoa(l.pid))
		_ = f.Sync()
	}

	l.file = f
	return true, nil
}

// Release drops the lock and closes the underlying file handle; the next
// Acquire reopens the file.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	return err
}

// Close releases the lock and removes the lock file, whether or not this
// FileLock held it.
func (l *FileLock) Close() error {
	err := l.Release()
	_ = os.Remove(l.path)
	return err
}

// isLockStale reports whether the lock file at path names a PID that is no
// longer alive. It deliberately does not treat an old-but-live PID as stale:
// a long-running recording legitimately holds the lock file unchanged for
// hours, and age-based eviction would steal it out from under that process.
func isLockStale(path string, _ time.Duration) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return true
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return true
	}
	return false
}
