package vsdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/encoding"
	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// orphanCellKey is the single fixed key every Orphan/SingleValue stores
// its one value under, inside its own private prefix.
var orphanCellKey = []byte{}

// Orphan is a one-cell container holding exactly one encoded value,
// physically a RawMap of its own scoped to a single fixed key. Unlike the
// source crate, which gives numeric Orphan values full operator overload
// support via Rust's Deref/DerefMut and std::ops traits, Go has no
// operator overloading - callers mutate through GetMut/Update instead,
// the same write-back guard pattern Map uses.
//
// SingleValue is an alias: the source crate treats Orphan and SingleValue
// as the same primitive under two names.
type Orphan[T any] struct {
	raw      rawmap.RawMap
	valCodec encoding.ValueEncode[T]
}

// SingleValue is Orphan under the name the source crate also uses for it.
type SingleValue[T any] = Orphan[T]

// NewOrphan allocates a fresh cell initialized to value.
func NewOrphan[T any](ctx context.Context, eng *engine.Engine, valCodec encoding.ValueEncode[T], value T) (Orphan[T], error) {
	raw, err := rawmap.New(ctx, eng)
	if err != nil {
		return Orphan[T]{}, err
	}

	o := Orphan[T]{raw: raw, valCodec: valCodec}

	err = o.Set(ctx, value)
	if err != nil {
		return Orphan[T]{}, err
	}

	return o, nil
}

// Get returns the current value.
func (o Orphan[T]) Get(ctx context.Context) (T, error) {
	raw, found, err := o.raw.Get(ctx, orphanCellKey)

	var zero T

	if err != nil {
		return zero, err
	}

	if !found {
		return zero, fmt.Errorf("vsdb: orphan cell has no value (uninitialized or from a foreign directory)")
	}

	value, err := o.valCodec.DecodeValue(raw)
	if err != nil {
		return zero, fmt.Errorf("vsdb: decode orphan value: %w", err)
	}

	return value, nil
}

// Set overwrites the stored value.
func (o Orphan[T]) Set(ctx context.Context, value T) error {
	encoded, err := o.valCodec.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("vsdb: encode orphan value: %w", err)
	}

	_, _, err = o.raw.Insert(ctx, orphanCellKey, encoded)

	return err
}

// GetMut returns a write-back guard over the current value.
func (o Orphan[T]) GetMut(ctx context.Context) (*ValueGuard[T], error) {
	value, err := o.Get(ctx)
	if err != nil {
		return nil, err
	}

	return &ValueGuard[T]{
		value:  value,
		commit: func(v T) error { return o.Set(ctx, v) },
	}, nil
}

// Update runs fn over a mutable pointer to the current value and writes
// the result back.
func (o Orphan[T]) Update(ctx context.Context, fn func(*T)) error {
	guard, err := o.GetMut(ctx)
	if err != nil {
		return err
	}

	fn(guard.Value())

	return guard.Close()
}

// AsBytes serializes this handle.
func (o Orphan[T]) AsBytes() []byte {
	return o.raw.AsBytes()
}

// OrphanFromBytes deserializes a handle previously produced by AsBytes.
func OrphanFromBytes[T any](eng *engine.Engine, b []byte, valCodec encoding.ValueEncode[T]) (Orphan[T], error) {
	raw, err := rawmap.FromBytes(eng, b)
	if err != nil {
		return Orphan[T]{}, err
	}

	return Orphan[T]{raw: raw, valCodec: valCodec}, nil
}
