package vsdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/encoding"
	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// OrdMap is a Map whose keys are encoded with a KeyEncodeOrdered codec,
// so RawMap's byte ordering corresponds to K's natural ordering. This
// unlocks range scans and boundary lookups that an unordered Map cannot
// offer.
type OrdMap[K, V any] struct {
	Map[K, V]
	keyCodec encoding.KeyEncodeOrdered[K]
}

// NewOrdMap allocates a fresh, empty OrdMap backed by eng.
func NewOrdMap[K, V any](ctx context.Context, eng *engine.Engine, keyCodec encoding.KeyEncodeOrdered[K], valCodec encoding.ValueEncode[V]) (OrdMap[K, V], error) {
	m, err := NewMap[K, V](ctx, eng, keyCodec, valCodec)
	if err != nil {
		return OrdMap[K, V]{}, err
	}

	return OrdMap[K, V]{Map: m, keyCodec: keyCodec}, nil
}

// OrdMapFromBytes deserializes a handle previously produced by AsBytes.
func OrdMapFromBytes[K, V any](eng *engine.Engine, b []byte, keyCodec encoding.KeyEncodeOrdered[K], valCodec encoding.ValueEncode[V]) (OrdMap[K, V], error) {
	raw, err := rawmap.FromBytes(eng, b)
	if err != nil {
		return OrdMap[K, V]{}, err
	}

	return OrdMap[K, V]{Map: Map[K, V]{raw: raw, keyCodec: keyCodec, valCodec: valCodec}, keyCodec: keyCodec}, nil
}

// Shadow returns a second handle over the same underlying data.
func (m OrdMap[K, V]) Shadow() OrdMap[K, V] {
	return OrdMap[K, V]{Map: m.Map.Shadow(), keyCodec: m.keyCodec}
}

// Range invokes fn for every entry with lo <= key < hi, in ascending key
// order.
func (m OrdMap[K, V]) Range(ctx context.Context, lo, hi K, fn func(MapEntry[K, V]) error) error {
	it, err := m.raw.Range(ctx, m.keyCodec.EncodeKey(lo), m.keyCodec.EncodeKey(hi))
	if err != nil {
		return err
	}

	return m.consume(it, fn)
}

// First returns the entry with the smallest key, or found=false if the
// map is empty.
func (m OrdMap[K, V]) First(ctx context.Context) (MapEntry[K, V], bool, error) {
	it, err := m.raw.Iter(ctx)
	if err != nil {
		return MapEntry[K, V]{}, false, err
	}

	e, found := it.Next()

	return m.decodeEntry(e, found, nil)
}

// Last returns the entry with the largest key, or found=false if the
// map is empty.
func (m OrdMap[K, V]) Last(ctx context.Context) (MapEntry[K, V], bool, error) {
	it, err := m.raw.Iter(ctx)
	if err != nil {
		return MapEntry[K, V]{}, false, err
	}

	e, found := it.NextBack()

	return m.decodeEntry(e, found, nil)
}

// GetGe returns the entry with the smallest key >= key, or found=false if
// none exists.
func (m OrdMap[K, V]) GetGe(ctx context.Context, key K) (MapEntry[K, V], bool, error) {
	e, found, err := m.raw.GetGe(ctx, m.keyCodec.EncodeKey(key))

	return m.decodeEntry(e, found, err)
}

// GetLe returns the entry with the largest key <= key, or found=false if
// none exists.
func (m OrdMap[K, V]) GetLe(ctx context.Context, key K) (MapEntry[K, V], bool, error) {
	e, found, err := m.raw.GetLe(ctx, m.keyCodec.EncodeKey(key))

	return m.decodeEntry(e, found, err)
}

func (m OrdMap[K, V]) decodeEntry(e rawmap.Entry, found bool, err error) (MapEntry[K, V], bool, error) {
	if err != nil || !found {
		return MapEntry[K, V]{}, false, err
	}

	key, err := m.keyCodec.DecodeKey(e.Key)
	if err != nil {
		return MapEntry[K, V]{}, false, fmt.Errorf("vsdb: decode key: %w", err)
	}

	value, err := m.valCodec.DecodeValue(e.Value)
	if err != nil {
		return MapEntry[K, V]{}, false, fmt.Errorf("vsdb: decode value: %w", err)
	}

	return MapEntry[K, V]{Key: key, Value: value}, true, nil
}

func (m OrdMap[K, V]) consume(it *rawmap.Iterator, fn func(MapEntry[K, V]) error) error {
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
