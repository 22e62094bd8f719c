package vsdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/encoding"
	"github.com/calvinalkan/vsdb/pkg/engine"
)

// ErrIndexOutOfRange marks an out-of-range Vec index. Like the source
// crate, this is a programming error, not a recoverable condition - Vec
// methods panic with this error rather than returning it.
var ErrIndexOutOfRange = fmt.Errorf("vsdb: index out of range")

// Vec is a logical ordered sequence indexed by contiguous uint64
// positions [0, Len), physically stored as an OrdMap[uint64, T]. It is a
// thin value object; the data lives in the shared engine.
type Vec[T any] struct {
	m OrdMap[uint64, T]
}

// NewVec allocates a fresh, empty Vec backed by eng.
func NewVec[T any](ctx context.Context, eng *engine.Engine, valCodec encoding.ValueEncode[T]) (Vec[T], error) {
	m, err := NewOrdMap[uint64, T](ctx, eng, encoding.Uint64Key{}, valCodec)
	if err != nil {
		return Vec[T]{}, err
	}

	return Vec[T]{m: m}, nil
}

// Len returns the number of elements.
func (v Vec[T]) Len(ctx context.Context) (uint64, error) {
	return v.m.Len(ctx)
}

// IsEmpty reports whether Len == 0.
func (v Vec[T]) IsEmpty(ctx context.Context) (bool, error) {
	return v.m.IsEmpty(ctx)
}

// Get returns the element at index i. Panics with ErrIndexOutOfRange if
// i >= Len.
func (v Vec[T]) Get(ctx context.Context, i uint64) (T, error) {
	value, found, err := v.m.Get(ctx, i)
	if err != nil {
		var zero T

		return zero, err
	}

	if !found {
		panic(ErrIndexOutOfRange)
	}

	return value, nil
}

// Push appends value at the end.
func (v Vec[T]) Push(ctx context.Context, value T) error {
	n, err := v.Len(ctx)
	if err != nil {
		return err
	}

	_, _, err = v.m.Insert(ctx, n, value)

	return err
}

// Pop removes and returns the last element. The second return is false
// if the Vec is empty.
func (v Vec[T]) Pop(ctx context.Context) (T, bool, error) {
	n, err := v.Len(ctx)
	if err != nil || n == 0 {
		var zero T

		return zero, false, err
	}

	value, _, err := v.m.Remove(ctx, n-1)
	if err != nil {
		var zero T

		return zero, false, err
	}

	return value, true, nil
}

// Last returns the final element. The second return is false if the Vec
// is empty.
func (v Vec[T]) Last(ctx context.Context) (T, bool, error) {
	n, err := v.Len(ctx)
	if err != nil || n == 0 {
		var zero T

		return zero, false, err
	}

	value, found, err := v.m.Get(ctx, n-1)

	return value, found, err
}

// Update overwrites the element at index i. Panics with
// ErrIndexOutOfRange if i >= Len.
func (v Vec[T]) Update(ctx context.Context, i uint64, value T) error {
	n, err := v.Len(ctx)
	if err != nil {
		return err
	}

	if i >= n {
		panic(ErrIndexOutOfRange)
	}

	_, _, err = v.m.Insert(ctx, i, value)

	return err
}

// Insert shifts every element at index >= i up by one position and
// stores value at i. O(n) in the number of elements after i. Panics with
// ErrIndexOutOfRange if i > Len.
func (v Vec[T]) Insert(ctx context.Context, i uint64, value T) error {
	n, err := v.Len(ctx)
	if err != nil {
		return err
	}

	if i > n {
		panic(ErrIndexOutOfRange)
	}

	for idx := n; idx > i; idx-- {
		shifted, _, err := v.m.Get(ctx, idx-1)
		if err != nil {
			return err
		}

		_, _, err = v.m.Insert(ctx, idx, shifted)
		if err != nil {
			return err
		}
	}

	_, _, err = v.m.Insert(ctx, i, value)

	return err
}

// Remove deletes the element at index i, shifting every following
// element down by one position to keep indices contiguous. O(n) in the
// number of elements after i. Panics with ErrIndexOutOfRange if i >= Len.
func (v Vec[T]) Remove(ctx context.Context, i uint64) (T, error) {
	n, err := v.Len(ctx)
	if err != nil {
		var zero T

		return zero, err
	}

	if i >= n {
		panic(ErrIndexOutOfRange)
	}

	removed, _, err := v.m.Remove(ctx, i)
	if err != nil {
		var zero T

		return zero, err
	}

	for idx := i + 1; idx < n; idx++ {
		shifted, _, err := v.m.Get(ctx, idx)
		if err != nil {
			return removed, err
		}

		_, _, err = v.m.Insert(ctx, idx-1, shifted)
		if err != nil {
			return removed, err
		}

		_, _, err = v.m.Remove(ctx, idx)
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// SwapRemove removes the element at index i in O(1) by moving the last
// element into position i. Does not preserve order. Panics with
// ErrIndexOutOfRange if i >= Len.
func (v Vec[T]) SwapRemove(ctx context.Context, i uint64) (T, error) {
	n, err := v.Len(ctx)
	if err != nil {
		var zero T

		return zero, err
	}

	if i >= n {
		panic(ErrIndexOutOfRange)
	}

	removed, _, err := v.m.Remove(ctx, i)
	if err != nil {
		var zero T

		return zero, err
	}

	last := n - 1

	if last != i {
		lastValue, _, err := v.m.Remove(ctx, last)
		if err != nil {
			return removed, err
		}

		_, _, err = v.m.Insert(ctx, i, lastValue)
		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// Iter invokes fn for every element in index order.
func (v Vec[T]) Iter(ctx context.Context, fn func(index uint64, value T) error) error {
	return v.m.Iter(ctx, func(e MapEntry[uint64, T]) error {
		return fn(e.Key, e.Value)
	})
}

// Clear removes every element.
func (v Vec[T]) Clear(ctx context.Context) error {
	return v.m.Clear(ctx)
}

// AsBytes serializes this handle.
func (v Vec[T]) AsBytes() []byte {
	return v.m.AsBytes()
}

// VecFromBytes deserializes a handle previously produced by AsBytes.
func VecFromBytes[T any](eng *engine.Engine, b []byte, valCodec encoding.ValueEncode[T]) (Vec[T], error) {
	m, err := OrdMapFromBytes[uint64, T](eng, b, encoding.Uint64Key{}, valCodec)
	if err != nil {
		return Vec[T]{}, err
	}

	return Vec[T]{m: m}, nil
}
