package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// pidWriteGrace is how long an empty or unreadable lock file is assumed to
// belong to an owner that has not written its pid yet.
const pidWriteGrace = 2 * time.Second

// FileLock keeps a single writer on the local movie store by holding a
// lock file that records the owner's pid.
type FileLock struct {
	dir    string
	logger *slog.Logger
}

// NewFileLock creates a lock rooted at dir, or the temp dir when dir is empty.
func NewFileLock(dir string, logger *slog.Logger) *FileLock {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "moviecatalog-locks")
	}
	return &FileLock{
		dir:    dir,
		logger: logger,
	}
}

// KeyForDB derives a lock key from a database path or DSN.
func KeyForDB(dbPath string) string {
	base := filepath.Base(dbPath)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, base)
	return "catalog-" + base
}

// TryLock attempts to acquire the lock for key until timeout elapses. A lock
// whose owner process is gone is removed and retaken.
func (fl *FileLock) TryLock(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	lockFile := fl.path(key)

	if err := os.MkdirAll(fl.dir, 0750); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		// #nosec G304 - lockFile is built by path from a sanitized key
		file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			if _, err := fmt.Fprintf(file, "%d\n%d\n", os.Getpid(), time.Now().Unix()); err != nil {
				_ = file.Close()
				_ = os.Remove(lockFile)
				return false, fmt.Errorf("failed to write lock file: %w", err)
			}
			if err := file.Close(); err != nil {
				return false, fmt.Errorf("failed to close lock file: %w", err)
			}
			fl.logger.Debug("Acquired lock", slog.String("key", key), slog.String("file", lockFile))
			return true, nil
		}

		if !os.IsExist(err) {
			return false, fmt.Errorf("failed to create lock file: %w", err)
		}

		if fl.isStale(lockFile) {
			fl.logger.Warn("Removing stale lock file", slog.String("file", lockFile))
			if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
				return false, fmt.Errorf("failed to remove stale lock file: %w", err)
			}
			continue
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Unlock releases the lock for key. Releasing a lock that is not held is a no-op.
func (fl *FileLock) Unlock(key string) error {
	lockFile := fl.path(key)
	if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	fl.logger.Debug("Released lock", slog.String("key", key), slog.String("file", lockFile))
	return nil
}

func (fl *FileLock) path(key string) string {
	return filepath.Clean(filepath.Join(fl.dir, key+".lock"))
}

// isStale reports whether the process recorded in lockFile no longer runs.
// A file without a pid is stale only once it is older than pidWriteGrace.
func (fl *FileLock) isStale(lockFile string) bool {
	data, err := os.ReadFile(lockFile) // #nosec G304
	if err != nil {
		return false
	}

	pidLine, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil || pid <= 0 {
		info, err := os.Stat(lockFile)
		if err != nil {
			return false
		}
		return time.Since(info.ModTime()) > pidWriteGrace
	}
	if pid == os.Getpid() {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	return proc.Signal(syscall.Signal(0)) != nil
}
