package rawmap

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/engine"
)

// RawMap is an ordered byte-key, byte-value map scoped to a single
// prefix in a shared engine.Engine. Multiple RawMap values constructed
// over the same prefix (via Shadow, or by decoding the same serialized
// bytes) are the *same* map - RawMap is a small value object that
// references state that lives in the engine, not a private copy of it.
//
// RawMap values are safe to pass by value and to use concurrently for
// reads. Concurrent writes through two RawMap values sharing a prefix are
// not serialized by this package - see Shadow.
type RawMap struct {
	eng    *engine.Engine
	prefix Prefix
}

// lenCounterName is the engine counter key this RawMap's cached length is
// persisted under. Using the engine's counters table (rather than a
// sentinel entry inside the map's own key range) sidesteps the ambiguity
// spec.md leaves open about how long a "prefix || 0x00...0x00" sentinel
// key should be and whether it could collide with a zero-length user key;
// see DESIGN.md.
func (p Prefix) lenCounterName() string {
	return fmt.Sprintf("rawmap_len:%d", p.Uint64())
}

// New allocates a fresh prefix and returns an empty RawMap backed by eng.
func New(ctx context.Context, eng *engine.Engine) (RawMap, error) {
	id, err := eng.AllocateID(ctx, PrefixAllocatorCounter, FirstUserPrefix)
	if err != nil {
		return RawMap{}, fmt.Errorf("%w: allocate prefix: %v", ErrStorage, err)
	}

	return RawMap{eng: eng, prefix: NewPrefix(id)}, nil
}

// Prefix returns the namespace this RawMap owns.
func (m RawMap) Prefix() Prefix {
	return m.prefix
}

// Get returns the stored value for key, or (nil, false) if absent.
func (m RawMap) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	value, found, err := m.eng.Get(ctx, m.prefix.EngineKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", ErrStorage, err)
	}

	return value, found, nil
}

// Contains reports whether key is present.
func (m RawMap) Contains(ctx context.Context, key []byte) (bool, error) {
	_, found, err := m.Get(ctx, key)

	return found, err
}

// Insert stores value under key and returns the previous value, if any.
// len is updated iff presence changed.
func (m RawMap) Insert(ctx context.Context, key, value []byte) ([]byte, bool, error) {
	prev, hadPrev, err := m.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	err = m.eng.Put(ctx, m.prefix.EngineKey(key), value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: insert: %v", ErrStorage, err)
	}

	if !hadPrev {
		err = m.adjustLen(ctx, 1)
		if err != nil {
			return nil, false, err
		}
	}

	return prev, hadPrev, nil
}

// Remove deletes key and returns the previous value, if any.
func (m RawMap) Remove(ctx context.Context, key []byte) ([]byte, bool, error) {
	prev, hadPrev, err := m.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if !hadPrev {
		return nil, false, nil
	}

	err = m.eng.Delete(ctx, m.prefix.EngineKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: remove: %v", ErrStorage, err)
	}

	err = m.adjustLen(ctx, -1)
	if err != nil {
		return nil, false, err
	}

	return prev, true, nil
}

// Len returns the cached entry count.
func (m RawMap) Len(ctx context.Context) (uint64, error) {
	return m.readLen(ctx)
}

// IsEmpty reports whether Len == 0.
func (m RawMap) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.Len(ctx)
	if err != nil {
		return false, err
	}

	return n == 0, nil
}

// Clear removes every entry under this prefix atomically and resets the
// cached length.
func (m RawMap) Clear(ctx context.Context) error {
	entries, err := m.eng.Iter(ctx, m.prefix.Bytes())
	if err != nil {
		return fmt.Errorf("%w: clear: scan: %v", ErrStorage, err)
	}

	if len(entries) == 0 {
		return m.setLen(ctx, 0)
	}

	ops := make([]engine.WriteOp, len(entries))
	for i, e := range entries {
		ops[i] = engine.WriteOp{Key: e.Key}
	}

	err = m.eng.BatchWrite(ctx, ops)
	if err != nil {
		return fmt.Errorf("%w: clear: batch delete: %v", ErrStorage, err)
	}

	return m.setLen(ctx, 0)
}

// Shadow returns a second handle sharing this RawMap's prefix. The two
// handles are the same map: writes through either are visible through
// both. Unlike a language with an unsafe marker, Go has no type-level way
// to flag this, so the contract is documented instead - callers that use
// Shadow are responsible for serializing writes across the pair (for
// example with their own mutex). The cached length counter in particular
// can drift under concurrent unsynchronized writes through shadows; see
// DESIGN.md "Open Questions".
func (m RawMap) Shadow() RawMap {
	return m
}

// AsBytes serializes this handle - just its prefix, never its data.
func (m RawMap) AsBytes() []byte {
	return m.prefix.Bytes()
}

// FromBytes deserializes a handle previously produced by AsBytes. The
// returned RawMap is backed by the same engine entries - no data is
// copied.
func FromBytes(eng *engine.Engine, b []byte) (RawMap, error) {
	prefix, err := PrefixFromBytes(b)
	if err != nil {
		return RawMap{}, fmt.Errorf("rawmap: from bytes: %w", err)
	}

	return RawMap{eng: eng, prefix: prefix}, nil
}

// FromPrefix constructs a RawMap handle over an explicit, already-known
// prefix rather than allocating a fresh one via New. Used by packages
// that own a reserved internal prefix (DagMap node metadata) or that
// rehydrate a prefix already recorded elsewhere (DagMap node data, the
// async cleaner's reclamation tests) instead of allocating a fresh one.
func FromPrefix(eng *engine.Engine, prefix Prefix) RawMap {
	return RawMap{eng: eng, prefix: prefix}
}

func (m RawMap) readLen(ctx context.Context) (uint64, error) {
	value, found, err := m.eng.CounterValue(ctx, m.prefix.lenCounterName())
	if err != nil {
		return 0, fmt.Errorf("%w: read len: %v", ErrStorage, err)
	}

	if !found {
		return m.rebuildLen(ctx)
	}

	return value, nil
}

// rebuildLen recomputes len via a full prefix scan, used the first time a
// RawMap's cached length has never been written (e.g. right after New).
func (m RawMap) rebuildLen(ctx context.Context) (uint64, error) {
	entries, err := m.eng.Iter(ctx, m.prefix.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%w: rebuild len: %v", ErrStorage, err)
	}

	n := uint64(len(entries))

	err = m.setLen(ctx, n)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (m RawMap) setLen(ctx context.Context, n uint64) error {
	err := m.eng.SetCounter(ctx, m.prefix.lenCounterName(), n)
	if err != nil {
		return fmt.Errorf("%w: set len: %v", ErrStorage, err)
	}

	return nil
}

func (m RawMap) adjustLen(ctx context.Context, delta int64) error {
	current, err := m.readLen(ctx)
	if err != nil {
		return err
	}

	next := int64(current) + delta
	if next < 0 {
		panic(fmt.Sprintf("%v: rawmap length went negative", ErrInvariant))
	}

	return m.setLen(ctx, uint64(next))
}
