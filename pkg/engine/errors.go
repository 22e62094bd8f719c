// Package engine is the storage engine adapter: a thin, uniform facade over
// a persistent ordered key-value store. It is the single external
// collaborator every other package in this module builds on.
package engine

import "errors"

// ErrStorage wraps any failure originating from the underlying SQLite
// database (I/O, corruption, busy timeouts). Callers should use
// errors.Is(err, ErrStorage) to distinguish storage failures from
// programming errors.
var ErrStorage = errors.New("storage")

// ErrClosed names the closed-engine condition. Engine methods called
// after Close do not return it; they fail with an ErrStorage-wrapped error
// from the closed database handle.
var ErrClosed = errors.New("engine closed")

// ErrBaseDirChanged is returned by SetBaseDir when called with a value
// that contradicts a base directory already in effect.
var ErrBaseDirChanged = errors.New("base directory already set to a different value")
