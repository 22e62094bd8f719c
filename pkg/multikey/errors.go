package multikey

import "errors"

// ErrStorage wraps any failure from the underlying engine.
var ErrStorage = errors.New("multikey: storage")

// ErrArity is returned when a caller passes a key segment count the map
// was not constructed for, or a partial-key prefix whose length is outside
// what the operation accepts ([1, arity) for RemovePrefix, [0, arity] for
// IterOpWithPrefix).
var ErrArity = errors.New("multikey: arity mismatch")
