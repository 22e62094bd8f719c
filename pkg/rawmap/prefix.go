// Package rawmap implements RawMap, the single on-disk primitive every
// higher-level collection in this module is built upon: an ordered
// byte-key map scoped to a single 8-byte namespace prefix inside a shared
// [github.com/calvinalkan/vsdb/pkg/engine.Engine].
package rawmap

import (
	"encoding/binary"
	"fmt"
)

// Prefix is the 8-byte big-endian namespace every RawMap owns. It forms
// the opening bytes of every engine key the owning RawMap writes.
type Prefix [8]byte

// FirstUserPrefix is the first prefix value handed to user instances.
// IDs below this are reserved for internal metadata namespaces: 1 holds
// DagMap node metadata. Prefix 0 is unused: the prefix-allocation counter
// is a row in the engine's counters table, not an entry in the kv keyspace
// (see PrefixAllocatorCounter). The async
// cleaner's journal is not one of these - it lives in its own flat file
// outside the engine's keyspace (see dagmap/cleaner), so it survives
// recovery independently of whatever the engine itself is doing. The
// remaining reserved IDs up to FirstUserPrefix are unassigned headroom for
// future internal namespaces.
const FirstUserPrefix uint64 = 4096

// PrefixAllocatorCounter is the name of the engine counter New allocates
// fresh prefixes from.
const PrefixAllocatorCounter = "prefix_allocator"

// NewPrefix converts a raw uint64 into a Prefix.
func NewPrefix(v uint64) Prefix {
	var p Prefix

	binary.BigEndian.PutUint64(p[:], v)

	return p
}

// Uint64 returns the numeric value of the prefix.
func (p Prefix) Uint64() uint64 {
	return binary.BigEndian.Uint64(p[:])
}

// Bytes returns the 8-byte wire representation of the prefix.
func (p Prefix) Bytes() []byte {
	out := make([]byte, 8)
	copy(out, p[:])

	return out
}

// PrefixFromBytes decodes a Prefix previously produced by Bytes.
func PrefixFromBytes(b []byte) (Prefix, error) {
	if len(b) != 8 {
		return Prefix{}, fmt.Errorf("rawmap: prefix must be 8 bytes, got %d", len(b))
	}

	var p Prefix

	copy(p[:], b)

	return p, nil
}

// EngineKey returns the full engine-level key for a user key under this
// prefix: prefix || userKey.
func (p Prefix) EngineKey(userKey []byte) []byte {
	out := make([]byte, 8+len(userKey))
	copy(out, p[:])
	copy(out[8:], userKey)

	return out
}

// UserKey strips this prefix from an engine key, returning the remaining
// user-key bytes. Panics if engineKey does not begin with the prefix -
// callers only ever pass back keys this RawMap itself produced.
func (p Prefix) UserKey(engineKey []byte) []byte {
	if len(engineKey) < 8 {
		panic("rawmap: engine key shorter than prefix")
	}

	for i := range 8 {
		if engineKey[i] != p[i] {
			panic("rawmap: engine key does not belong to this prefix")
		}
	}

	return engineKey[8:]
}
