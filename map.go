package vsdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/encoding"
	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// MapEntry is a decoded (key, value) pair yielded by Map.Iter.
type MapEntry[K, V any] struct {
	Key   K
	Value V
}

// Map is an unordered (from the caller's point of view - keys are
// compared as opaque bytes, not by K's natural order) typed view over a
// RawMap. It is a thin, copyable value: the actual data lives in the
// shared engine.
type Map[K, V any] struct {
	raw      rawmap.RawMap
	keyCodec encoding.KeyEncode[K]
	valCodec encoding.ValueEncode[V]
}

// NewMap allocates a fresh, empty Map backed by eng.
func NewMap[K, V any](ctx context.Context, eng *engine.Engine, keyCodec encoding.KeyEncode[K], valCodec encoding.ValueEncode[V]) (Map[K, V], error) {
	raw, err := rawmap.New(ctx, eng)
	if err != nil {
		return Map[K, V]{}, err
	}

	return Map[K, V]{raw: raw, keyCodec: keyCodec, valCodec: valCodec}, nil
}

// Get returns the stored value for key, or the zero value and false if
// absent.
func (m Map[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	raw, found, err := m.raw.Get(ctx, m.keyCodec.EncodeKey(key))

	var zero V

	if err != nil || !found {
		return zero, false, err
	}

	value, err := m.valCodec.DecodeValue(raw)
	if err != nil {
		return zero, false, fmt.Errorf("vsdb: decode value: %w", err)
	}

	return value, true, nil
}

// Contains reports whether key is present.
func (m Map[K, V]) Contains(ctx context.Context, key K) (bool, error) {
	return m.raw.Contains(ctx, m.keyCodec.EncodeKey(key))
}

// Insert stores value under key and returns the previous value, if any.
func (m Map[K, V]) Insert(ctx context.Context, key K, value V) (V, bool, error) {
	var zero V

	encoded, err := m.valCodec.EncodeValue(value)
	if err != nil {
		return zero, false, fmt.Errorf("vsdb: encode value: %w", err)
	}

	prevRaw, hadPrev, err := m.raw.Insert(ctx, m.keyCodec.EncodeKey(key), encoded)
	if err != nil || !hadPrev {
		return zero, hadPrev, err
	}

	prev, err := m.valCodec.DecodeValue(prevRaw)
	if err != nil {
		return zero, false, fmt.Errorf("vsdb: decode previous value: %w", err)
	}

	return prev, true, nil
}

// Remove deletes key and returns the removed value, if any.
func (m Map[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	var zero V

	prevRaw, hadPrev, err := m.raw.Remove(ctx, m.keyCodec.EncodeKey(key))
	if err != nil || !hadPrev {
		return zero, hadPrev, err
	}

	prev, err := m.valCodec.DecodeValue(prevRaw)
	if err != nil {
		return zero, false, fmt.Errorf("vsdb: decode removed value: %w", err)
	}

	return prev, true, nil
}

// Len returns the number of stored entries.
func (m Map[K, V]) Len(ctx context.Context) (uint64, error) {
	return m.raw.Len(ctx)
}

// IsEmpty reports whether Len == 0.
func (m Map[K, V]) IsEmpty(ctx context.Context) (bool, error) {
	return m.raw.IsEmpty(ctx)
}

// Clear removes every entry.
func (m Map[K, V]) Clear(ctx context.Context) error {
	return m.raw.Clear(ctx)
}

// Shadow returns a second handle over the same underlying data; see
// RawMap.Shadow for the aliasing contract this inherits.
func (m Map[K, V]) Shadow() Map[K, V] {
	return Map[K, V]{raw: m.raw.Shadow(), keyCodec: m.keyCodec, valCodec: m.valCodec}
}

// AsBytes serializes this handle (its prefix only, never its data).
func (m Map[K, V]) AsBytes() []byte {
	return m.raw.AsBytes()
}

// MapFromBytes deserializes a handle previously produced by AsBytes.
func MapFromBytes[K, V any](eng *engine.Engine, b []byte, keyCodec encoding.KeyEncode[K], valCodec encoding.ValueEncode[V]) (Map[K, V], error) {
	raw, err := rawmap.FromBytes(eng, b)
	if err != nil {
		return Map[K, V]{}, err
	}

	return Map[K, V]{raw: raw, keyCodec: keyCodec, valCodec: valCodec}, nil
}

// Iter invokes fn for every entry, in the RawMap's underlying byte-key
// order (which for an unordered Map is not guaranteed to correspond to
// any ordering of K - use OrdMap when that matters).
func (m Map[K, V]) Iter(ctx context.Context, fn func(MapEntry[K, V]) error) error {
	it, err := m.raw.Iter(ctx)
	if err != nil {
		return err
	}

	for e, ok := it.Next(); ok; e, ok = it.Next() {
		key, err := m.keyCodec.DecodeKey(e.Key)
		if err != nil {
			return fmt.Errorf("vsdb: decode key: %w", err)
		}

		value, err := m.valCodec.DecodeValue(e.Value)
		if err != nil {
			return fmt.Errorf("vsdb: decode value: %w", err)
		}

		err = fn(MapEntry[K, V]{Key: key, Value: value})
		if err != nil {
			return err
		}
	}

	return nil
}

// ValueGuard borrows a decoded value for in-place mutation. Go has no
// destructors, so unlike the source crate's RAII guard this must be
// closed explicitly - either by calling Close, or by using Map.Update,
// which closes it automatically.
type ValueGuard[V any] struct {
	value  V
	closed bool
	commit func(V) error
}

// Value returns a pointer to the borrowed value for in-place mutation.
func (g *ValueGuard[V]) Value() *V {
	return &g.value
}

// Close writes the (possibly mutated) value back and marks the guard
// closed. Idempotent: calling Close more than once is a no-op returning
// nil after the first call.
func (g *ValueGuard[V]) Close() error {
	if g.closed {
		return nil
	}

	g.closed = true

	return g.commit(g.value)
}

// GetMut returns a write-back guard over the current value at key.
// Returns (nil, false, nil) if key is absent - callers wanting an
// insert-if-absent guard should Insert a zero value first.
func (m Map[K, V]) GetMut(ctx context.Context, key K) (*ValueGuard[V], bool, error) {
	value, found, err := m.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	return &ValueGuard[V]{
		value: value,
		commit: func(v V) error {
			_, _, err := m.Insert(ctx, key, v)
			return err
		},
	}, true, nil
}

// Update fetches the current value at key, runs fn over a mutable
// pointer to it, and writes the result back - a defer-free alternative
// to GetMut for callers who don't need to hold the guard open across
// other operations. Returns false if key is absent; fn is not called in
// that case.
func (m Map[K, V]) Update(ctx context.Context, key K, fn func(*V)) (bool, error) {
	guard, found, err := m.GetMut(ctx, key)
	if err != nil || !found {
		return false, err
	}

	fn(guard.Value())

	return true, guard.Close()
}
