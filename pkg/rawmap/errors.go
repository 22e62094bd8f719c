package rawmap

import "errors"

// ErrStorage wraps any failure from the underlying engine.
var ErrStorage = errors.New("rawmap: storage")

// ErrInvariant marks an internal invariant violation (for example a
// negative length). These are programming errors, not recoverable
// conditions: this package never returns ErrInvariant, it panics with a
// message that begins with ErrInvariant's text, so a recovered panic
// value can be recognized by that string.
var ErrInvariant = errors.New("rawmap: invariant violation")
