// Package statefile provides exclusive and shared access to JSON state
// files shared between concurrent processes of the control plane.
//
// Every persisted document has exactly one writer path: an exclusive
// lease acquired here, with an atomic temp-and-rename commit. Lock
// holders are recorded in a sidecar file so that locks abandoned by a
// crashed process can be recovered without operator intervention.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

const (
	// FileMode is applied to every state file written by this package.
	FileMode = 0o600
	// DirMode is applied to parent directories created by this package.
	DirMode = 0o700
)

// ErrLockTimeout is returned when a lease could not be acquired within
// the configured timeout and the current holder could not be proven dead.
var ErrLockTimeout = errors.New("timed out waiting for state file lock")

// LockBusyError is returned when the lock is held by a live process.
type LockBusyError struct {
	Path string
	PID  int
}

func (e LockBusyError) Error() string {
	return fmt.Sprintf("state file %s is locked by active PID %d", e.Path, e.PID)
}

// Config bounds lock acquisition.
type Config struct {
	// LockTimeout bounds a single acquisition attempt.
	LockTimeout time.Duration
	// PollInterval is the retry cadence while the lock is contended.
	PollInterval time.Duration
}

// DefaultConfig returns the standard acquisition bounds.
func DefaultConfig() Config {
	return Config{
		LockTimeout:  30 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LockTimeout must be positive (got %s)", c.LockTimeout)
	} else if c.PollInterval <= 0 {
		return fmt.Errorf("PollInterval must be positive (got %s)", c.PollInterval)
	}
	return nil
}

// holder is the sidecar record identifying the current exclusive holder.
type holder struct {
	PID        int    `json:"pid"`
	AcquiredAt string `json:"acquired_at"`
	FilePath   string `json:"file_path"`
}

// Lease is a held lock over a state file. It must be released exactly
// once, on all exit paths.
type Lease struct {
	path      string
	lockPath  string
	fl        *flock.Flock
	exclusive bool
	released  bool
}

// AcquireExclusive obtains the exclusive lease for |path|, creating the
// file (mode 0600) and its parent directory (mode 0700) when
// |createIfMissing| is set. On success a sidecar <path>.lock holder
// record names this process.
func AcquireExclusive(path string, cfg Config, createIfMissing bool) (*Lease, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if createIfMissing {
		if err := ensureFile(path); err != nil {
			return nil, err
		}
	}
	var lease, err = acquire(path, cfg, true)
	if err != nil {
		return nil, err
	}
	if err = lease.writeHolder(); err != nil {
		_ = lease.fl.Unlock()
		return nil, fmt.Errorf("recording lock holder: %w", err)
	}
	return lease, nil
}

// AcquireShared obtains a shared (read) lease for |path|. Multiple
// shared leases coexist; no holder record is written.
func AcquireShared(path string, cfg Config) (*Lease, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return acquire(path, cfg, false)
}

func acquire(path string, cfg Config, exclusive bool) (*Lease, error) {
	var lockPath = path + ".lock"
	var fl = flock.New(lockPath)

	var locked, err = tryWithTimeout(fl, cfg, exclusive)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}
	if !locked && exclusive {
		// The holder may be a process that died without releasing.
		// Prove it dead, clear its record, and retry exactly once.
		if recoverStaleHolder(lockPath) {
			locked, err = tryWithTimeout(fl, cfg, exclusive)
			if err != nil {
				return nil, fmt.Errorf("locking %s after stale recovery: %w", lockPath, err)
			}
		}
	}
	if !locked {
		if h, ok := readHolder(lockPath); ok {
			return nil, LockBusyError{Path: path, PID: h.PID}
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	return &Lease{path: path, lockPath: lockPath, fl: fl, exclusive: exclusive}, nil
}

func tryWithTimeout(fl *flock.Flock, cfg Config, exclusive bool) (bool, error) {
	var ctx, cancel = context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = fl.TryLockContext(ctx, cfg.PollInterval)
	} else {
		locked, err = fl.TryRLockContext(ctx, cfg.PollInterval)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return locked, err
}

// recoverStaleHolder returns true if the holder record at |lockPath|
// identified a dead process (or was unreadable) and was cleared.
func recoverStaleHolder(lockPath string) bool {
	var h, ok = readHolder(lockPath)
	if ok && processAlive(h.PID) {
		return false
	}
	// A malformed or missing holder record is treated as stale.
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"lockPath": lockPath, "err": err}).
			Warn("failed to remove stale lock file")
		return false
	}
	log.WithFields(log.Fields{"lockPath": lockPath, "holderPID": h.PID}).
		Warn("recovered stale state file lock")
	return true
}

func readHolder(lockPath string) (holder, bool) {
	var h holder
	var data, err = os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return h, false
	}
	if err = json.Unmarshal(data, &h); err != nil || h.PID == 0 {
		return h, false
	}
	return h, true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	var proc, err = os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

func (l *Lease) writeHolder() error {
	var data, err = json.Marshal(holder{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC().Format(time.RFC3339),
		FilePath:   l.path,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, FileMode)
}

// Release drops the lease. An exclusive holder's sidecar record is
// cleared before the OS lock is released. Release is idempotent.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	if l.exclusive {
		// Truncate rather than remove: removal would race a waiter
		// that has already opened the lock file.
		if err := os.Truncate(l.lockPath, 0); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{"lockPath": l.lockPath, "err": err}).
				Warn("failed to clear lock holder record")
		}
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("releasing lock of %s: %w", l.path, err)
	}
	return nil
}

// Path returns the state file path this lease covers.
func (l *Lease) Path() string { return l.path }

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	var f, err = os.OpenFile(path, os.O_CREATE|os.O_RDONLY, FileMode)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	return f.Close()
}
