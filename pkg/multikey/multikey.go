// Package multikey implements MultiKeyMap, a map keyed by a fixed number
// of independent byte-string segments (a composite key), scoped to a
// single prefix in a shared engine.Engine. It is built directly on top of
// rawmap.RawMap: each composite key is encoded as a sequence of
// length-prefixed segments, which lets a prefix over the first i (1 <= i
// <= N) segments double as a valid RawMap key-range prefix, giving
// partial-key lookups, iteration and deletion for free.
package multikey

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// MultiKeyMap is an ordered map keyed by Arity independent byte-string
// segments. Like RawMap, it is a small value object referencing shared
// engine state, safe to pass by value and to read concurrently.
type MultiKeyMap struct {
	m     rawmap.RawMap
	arity int
}

// New allocates a fresh MultiKeyMap of the given key arity. Panics if
// arity is 0, mirroring the source's own "key_size must be non-zero"
// contract - arity is a construction-time constant, not user input.
func New(ctx context.Context, eng *engine.Engine, arity int) (MultiKeyMap, error) {
	if arity <= 0 {
		panic("multikey: arity must be positive")
	}

	m, err := rawmap.New(ctx, eng)
	if err != nil {
		return MultiKeyMap{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return MultiKeyMap{m: m, arity: arity}, nil
}

// Arity returns the number of key segments this map was constructed with.
func (mk MultiKeyMap) Arity() int {
	return mk.arity
}

// Get returns the stored value for a full composite key.
func (mk MultiKeyMap) Get(ctx context.Context, key [][]byte) ([]byte, bool, error) {
	encoded, err := mk.encodeFull(key)
	if err != nil {
		return nil, false, err
	}

	value, found, err := mk.m.Get(ctx, encoded)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", ErrStorage, err)
	}

	return value, found, nil
}

// Contains reports whether a full composite key is present.
func (mk MultiKeyMap) Contains(ctx context.Context, key [][]byte) (bool, error) {
	_, found, err := mk.Get(ctx, key)

	return found, err
}

// Insert stores value under a full composite key, returning the previous
// value if any.
func (mk MultiKeyMap) Insert(ctx context.Context, key [][]byte, value []byte) ([]byte, bool, error) {
	encoded, err := mk.encodeFull(key)
	if err != nil {
		return nil, false, err
	}

	prev, hadPrev, err := mk.m.Insert(ctx, encoded, value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: insert: %v", ErrStorage, err)
	}

	return prev, hadPrev, nil
}

// Remove deletes a single entry matching a full composite key, returning
// the removed value if any.
func (mk MultiKeyMap) Remove(ctx context.Context, key [][]byte) ([]byte, bool, error) {
	encoded, err := mk.encodeFull(key)
	if err != nil {
		return nil, false, err
	}

	prev, hadPrev, err := mk.m.Remove(ctx, encoded)
	if err != nil {
		return nil, false, fmt.Errorf("%w: remove: %v", ErrStorage, err)
	}

	return prev, hadPrev, nil
}

// RemovePrefix deletes every entry whose leading len(keyPrefix) segments
// match keyPrefix exactly, where 1 <= len(keyPrefix) < Arity. This is the
// partial-key batch removal spec.md requires (e.g. drop all entries for a
// given first segment regardless of the remaining segments). It returns
// the number of entries removed. An empty keyPrefix is a no-op returning
// (0, nil), matching the source crate's own remove(&[]) behavior, rather
// than an arity error.
func (mk MultiKeyMap) RemovePrefix(ctx context.Context, keyPrefix [][]byte) (int, error) {
	if len(keyPrefix) == 0 {
		return 0, nil
	}

	if len(keyPrefix) >= mk.arity {
		return 0, fmt.Errorf("%w: prefix length must be in [1, %d), got %d", ErrArity, mk.arity, len(keyPrefix))
	}

	prefixBytes, err := encodeSegments(keyPrefix)
	if err != nil {
		return 0, err
	}

	it, err := mk.m.Range(ctx, prefixBytes, upperBound(prefixBytes))
	if err != nil {
		return 0, fmt.Errorf("%w: remove prefix: scan: %v", ErrStorage, err)
	}

	batch := mk.m.Batch()

	n := 0

	for e, ok := it.Next(); ok; e, ok = it.Next() {
		batch.Delete(e.Key)
		n++
	}

	if n == 0 {
		return 0, nil
	}

	err = batch.Commit(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: remove prefix: commit: %v", ErrStorage, err)
	}

	return n, nil
}

// Clear removes every entry.
func (mk MultiKeyMap) Clear(ctx context.Context) error {
	err := mk.m.Clear(ctx)
	if err != nil {
		return fmt.Errorf("%w: clear: %v", ErrStorage, err)
	}

	return nil
}

// Len returns the number of stored entries.
func (mk MultiKeyMap) Len(ctx context.Context) (uint64, error) {
	n, err := mk.m.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: len: %v", ErrStorage, err)
	}

	return n, nil
}

// IsEmpty reports whether Len == 0.
func (mk MultiKeyMap) IsEmpty(ctx context.Context) (bool, error) {
	empty, err := mk.m.IsEmpty(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: is empty: %v", ErrStorage, err)
	}

	return empty, nil
}

// Entry is a decoded composite-key/value pair.
type Entry struct {
	Key   [][]byte
	Value []byte
}

// IterOp invokes op for every entry in ascending key order, stopping and
// returning the first error op produces.
func (mk MultiKeyMap) IterOp(ctx context.Context, op func(key [][]byte, value []byte) error) error {
	return mk.IterOpWithPrefix(ctx, nil, op)
}

// IterOpWithPrefix invokes op for every entry whose leading
// len(keyPrefix) segments match keyPrefix, in ascending key order.
// keyPrefix may be empty (iterate everything) or up to Arity segments
// long.
func (mk MultiKeyMap) IterOpWithPrefix(ctx context.Context, keyPrefix [][]byte, op func(key [][]byte, value []byte) error) error {
	if len(keyPrefix) > mk.arity {
		return fmt.Errorf("%w: prefix length must be in [0, %d], got %d", ErrArity, mk.arity, len(keyPrefix))
	}

	var it *rawmap.Iterator

	var err error

	if len(keyPrefix) == 0 {
		it, err = mk.m.Iter(ctx)
	} else {
		prefixBytes, encErr := encodeSegments(keyPrefix)
		if encErr != nil {
			return encErr
		}

		it, err = mk.m.Range(ctx, prefixBytes, upperBound(prefixBytes))
	}

	if err != nil {
		return fmt.Errorf("%w: iter: %v", ErrStorage, err)
	}

	for e, ok := it.Next(); ok; e, ok = it.Next() {
		segments, decErr := decodeSegments(e.Key, mk.arity)
		if decErr != nil {
			return decErr
		}

		opErr := op(segments, e.Value)
		if opErr != nil {
			return opErr
		}
	}

	return nil
}

func (mk MultiKeyMap) encodeFull(key [][]byte) ([]byte, error) {
	if len(key) != mk.arity {
		return nil, fmt.Errorf("%w: want %d segments, got %d", ErrArity, mk.arity, len(key))
	}

	return encodeSegments(key)
}

// encodeSegments concatenates each segment with a 4-byte big-endian
// length prefix, so that the encoding of any sequence of leading segments
// is itself a valid byte-string prefix of the encoding of any full key
// extending it.
func encodeSegments(segments [][]byte) ([]byte, error) {
	size := 0
	for _, s := range segments {
		size += 4 + len(s)
	}

	out := make([]byte, 0, size)

	for _, s := range segments {
		var lenBuf [4]byte

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		out = append(out, lenBuf[:]...)
		out = append(out, s...)
	}

	return out, nil
}

func decodeSegments(encoded []byte, arity int) ([][]byte, error) {
	segments := make([][]byte, 0, arity)

	rest := encoded
	for range arity {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: truncated segment length header", ErrStorage)
		}

		segLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]

		if uint32(len(rest)) < segLen {
			return nil, fmt.Errorf("%w: truncated segment body", ErrStorage)
		}

		segments = append(segments, rest[:segLen])
		rest = rest[segLen:]
	}

	return segments, nil
}

// upperBound returns the smallest byte string that is strictly greater
// than every string having prefix as a prefix, or nil if prefix consists
// entirely of 0xFF bytes (no finite upper bound needed - RawMap.Range
// treats a nil hi as unbounded above).
func upperBound(prefix []byte) []byte {
	out := append([]byte{}, prefix...)

	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}

	return nil
}
