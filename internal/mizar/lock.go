package mizar

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Lock is an advisory flock handle bound to one (name, version, purpose)
// triple. Purposes in use are "download" and "build".
type Lock struct {
	file *os.File
	path string
}

// lockPath is deterministic so independent processes agree on the file.
func lockPath(cfg *Config, name, version, purpose string) string {
	return filepath.Join(cfg.LockDir, fmt.Sprintf("%s-%s.%s.lock", name, version, purpose))
}

// AcquireLock takes the advisory lock for (name, version, purpose) without
// blocking. A held lock means another process is already doing the same
// operation, so the caller gets errLockBusy immediately instead of waiting.
func AcquireLock(cfg *Config, name, version, purpose string) (*Lock, error) {
	if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", cfg.LockDir, err)
	}
	path := lockPath(cfg, name, version, purpose)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s %s lock for %s-%s: %w", purpose, path, name, version, errLockBusy)
	}
	debugf("Acquired %s lock for %s-%s\n", purpose, name, version)
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock. It is an idempotent no-op on a nil or already
// released handle, so it is safe to defer unconditionally.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	debugf("Released lock %s\n", l.path)
}
