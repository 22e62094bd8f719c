package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrWouldBlock is returned by TryLock, or by LockWithTimeout when the
// acquisition timeout expires.
var ErrWouldBlock = errors.New("lock would block")

// ErrInvalidTimeout is returned when a timeout is <= 0.
var ErrInvalidTimeout = errors.New("invalid lock timeout")

// Locker provides file-based locking using flock(2).
//
// flock locks an open file description, not a pathname. Callers should lock a
// dedicated, stable lock file path (for example the ".lock" file beside the
// async cleaner's journal, which itself is replaced by rename on every
// write) and avoid replacing or unlinking that path while locks may be held.
//
// Locker has no mutable state beyond its dependencies and is safe for
// concurrent use as long as the underlying [FS] is.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fsys FS) *Locker {
	return &Locker{fs: fsys}
}

// Lock represents a held exclusive file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu   sync.Mutex
	file File
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent: subsequent calls return nil.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := syscall.Flock(fd, syscall.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return nil
}

// Lock acquires an exclusive lock on the file at path, blocking until the
// lock is available. The file is created if it does not already exist; its
// parent directory is not created and must already exist.
func (l *Locker) Lock(path string) (*Lock, error) {
	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), syscall.LOCK_EX)
	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("flock: %w", err)
	}

	return &Lock{file: file}, nil
}

// LockWithTimeout attempts to acquire an exclusive lock, retrying with
// bounded backoff until timeout expires.
//
// The timeout is best-effort: because this method polls and sleeps, it may
// overshoot slightly under scheduler delay. Returns [ErrWouldBlock] if the
// timeout expires before the lock is acquired, [ErrInvalidTimeout] if
// timeout <= 0.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0", ErrInvalidTimeout)
	}

	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		lock, err := l.TryLock(path)
		if err == nil {
			return lock, nil
		}

		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}

		time.Sleep(sleep)

		backoff *= 2
		if backoff > 25*time.Millisecond {
			backoff = 25 * time.Millisecond
		}
	}
}

// TryLock attempts to acquire an exclusive lock without blocking.
//
// Returns immediately with [ErrWouldBlock] if the lock is held elsewhere.
func (l *Locker) TryLock(path string) (*Lock, error) {
	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock: %w", err)
	}

	return &Lock{file: file}, nil
}

func flockRetryEINTR(fd int, how int) error {
	for {
		err := syscall.Flock(fd, how)
		if !errors.Is(err, syscall.EINTR) {
			return err
		}
	}
}
