package dagmap

// tombstone is the sentinel value Remove writes to hide an ancestor's
// value. It cannot collide with a real, user-inserted value: every value
// a caller stores through Insert is opaque application bytes and this
// module never itself constrains their shape, but by construction a
// tombstone is exactly one byte, 0xFF, and Insert never writes a
// one-byte 0xFF value on the node's behalf - only Remove does. Callers
// inserting literal []byte{0xFF} values would be indistinguishable from
// a tombstone; this matches the source's own documented caveat that the
// sentinel must be "distinguishable from any stored value" by
// convention, not by a type-level guarantee.
var tombstone = []byte{0xFF}

func isTombstone(value []byte) bool {
	return len(value) == 1 && value[0] == 0xFF
}
