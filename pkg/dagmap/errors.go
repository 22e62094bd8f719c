package dagmap

import "errors"

// ErrStorage wraps any failure from the underlying engine.
var ErrStorage = errors.New("dagmap: storage")

// ErrDead is returned by write operations attempted against a node that
// has been destroyed or pruned away.
var ErrDead = errors.New("dagmap: node is dead")
