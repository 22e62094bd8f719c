// Package encoding defines the codec contracts every typed wrapper in this
// module is generic over, plus the built-in codecs for common key and
// value types. KeyEncode and ValueEncode mirror the source crate's
// KeyEnDe/ValueEnDe trait bounds; KeyEncodeOrdered additionally requires
// that the encoding preserve the type's natural ordering byte-for-byte,
// since RawMap only ever compares keys as raw bytes.
package encoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// KeyEncode converts a key type to and from its RawMap byte representation.
type KeyEncode[K any] interface {
	EncodeKey(k K) []byte
	DecodeKey(b []byte) (K, error)
}

// ValueEncode converts a value type to and from its RawMap byte
// representation.
type ValueEncode[V any] interface {
	EncodeValue(v V) ([]byte, error)
	DecodeValue(b []byte) (V, error)
}

// KeyEncodeOrdered is a KeyEncode whose byte encoding sorts in the same
// order as the key type's natural ordering. OrdMap requires this; Map
// does not.
type KeyEncodeOrdered[K any] interface {
	KeyEncode[K]
}

// JSONValue is a ValueEncode built on encoding/json, usable for any type
// that marshals cleanly - the default value codec for Map/OrdMap/Vec/
// Orphan/SingleValue unless a caller supplies their own.
type JSONValue[V any] struct{}

func (JSONValue[V]) EncodeValue(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding: json encode value: %w", err)
	}

	return b, nil
}

func (JSONValue[V]) DecodeValue(b []byte) (V, error) {
	var v V

	err := json.Unmarshal(b, &v)
	if err != nil {
		return v, fmt.Errorf("encoding: json decode value: %w", err)
	}

	return v, nil
}

// BytesKey is the identity KeyEncode for []byte keys.
type BytesKey struct{}

func (BytesKey) EncodeKey(k []byte) []byte { return append([]byte{}, k...) }

func (BytesKey) DecodeKey(b []byte) ([]byte, error) { return append([]byte{}, b...), nil }

// StringKey encodes string keys as their raw UTF-8 bytes. The encoding is
// order-preserving: Go compares strings byte-by-byte, identical to
// bytes.Compare over their UTF-8 representation.
type StringKey struct{}

func (StringKey) EncodeKey(k string) []byte { return []byte(k) }

func (StringKey) DecodeKey(b []byte) (string, error) { return string(b), nil }

// Uint64Key encodes uint64 keys as 8-byte big-endian, which is
// order-preserving.
type Uint64Key struct{}

func (Uint64Key) EncodeKey(k uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, k)

	return b
}

func (Uint64Key) DecodeKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("encoding: uint64 key must be 8 bytes, got %d", len(b))
	}

	return binary.BigEndian.Uint64(b), nil
}

// Int64Key encodes int64 keys as 8-byte big-endian with the sign bit
// flipped, which maps the full signed range onto an order-preserving
// unsigned encoding: math.MinInt64 sorts first, math.MaxInt64 sorts last.
type Int64Key struct{}

func (Int64Key) EncodeKey(k int64) []byte {
	u := uint64(k) ^ (1 << 63)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, u)

	return b
}

func (Int64Key) DecodeKey(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("encoding: int64 key must be 8 bytes, got %d", len(b))
	}

	u := binary.BigEndian.Uint64(b)

	return int64(u ^ (1 << 63)), nil
}

// Float64Key encodes float64 keys in an order-preserving form: for
// non-negative floats it flips the sign bit, for negative floats it flips
// every bit, so that IEEE-754 bit patterns sort identically to the
// floats they represent (NaN excluded - callers must not use NaN as a
// key).
type Float64Key struct{}

func (Float64Key) EncodeKey(k float64) []byte {
	bits := math.Float64bits(k)

	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, bits)

	return b
}

func (Float64Key) DecodeKey(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("encoding: float64 key must be 8 bytes, got %d", len(b))
	}

	bits := binary.BigEndian.Uint64(b)

	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}

	return math.Float64frombits(bits), nil
}

// Tuple is a decoded two-component composite key.
type Tuple[A, B any] struct {
	First  A
	Second B
}

// TupleKey is an ordered KeyEncode over a pair of components, each
// encoded by its own KeyEncodeOrdered and concatenated with a 4-byte
// big-endian length prefix ahead of each component, mirroring
// pkg/multikey's segment encoding. The length header makes decoding
// unambiguous and sorts ahead of each component's bytes. When both
// components encode to a fixed width (Uint64Key, Int64Key, Float64Key),
// lex order over the encoding equals lexicographic order over the tuple
// (First, Second). For a variable-width component such as StringKey, a
// shorter encoding sorts before a longer one regardless of content
// ("b" before "aa"), so the order is not the component's natural order.
type TupleKey[A, B any] struct {
	First  KeyEncodeOrdered[A]
	Second KeyEncodeOrdered[B]
}

func (k TupleKey[A, B]) EncodeKey(t Tuple[A, B]) []byte {
	a := k.First.EncodeKey(t.First)
	b := k.Second.EncodeKey(t.Second)

	out := make([]byte, 0, 4+len(a)+4+len(b))
	out = appendLengthPrefixed(out, a)
	out = appendLengthPrefixed(out, b)

	return out
}

func (k TupleKey[A, B]) DecodeKey(b []byte) (Tuple[A, B], error) {
	var zero Tuple[A, B]

	aBytes, rest, err := cutLengthPrefixed(b)
	if err != nil {
		return zero, fmt.Errorf("encoding: tuple key: first component: %w", err)
	}

	bBytes, rest, err := cutLengthPrefixed(rest)
	if err != nil {
		return zero, fmt.Errorf("encoding: tuple key: second component: %w", err)
	}

	if len(rest) != 0 {
		return zero, fmt.Errorf("encoding: tuple key: %d trailing bytes", len(rest))
	}

	a, err := k.First.DecodeKey(aBytes)
	if err != nil {
		return zero, fmt.Errorf("encoding: tuple key: decode first component: %w", err)
	}

	bVal, err := k.Second.DecodeKey(bBytes)
	if err != nil {
		return zero, fmt.Errorf("encoding: tuple key: decode second component: %w", err)
	}

	return Tuple[A, B]{First: a, Second: bVal}, nil
}

// PairKey is TupleKey under the name the source crate also uses for a
// two-element composite key.
type PairKey[A, B any] = TupleKey[A, B]

func appendLengthPrefixed(out, component []byte) []byte {
	var lenBuf [4]byte

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(component)))
	out = append(out, lenBuf[:]...)
	out = append(out, component...)

	return out
}

func cutLengthPrefixed(b []byte) (component, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("truncated length header")
	}

	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]

	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("truncated component body")
	}

	return b[:n], b[n:], nil
}

// JSONKey is a non-ordered KeyEncode built on encoding/json, for key
// types Map can use but OrdMap cannot (JSON object/array encoding does
// not preserve any useful byte order).
type JSONKey[K any] struct{}

func (JSONKey[K]) EncodeKey(k K) []byte {
	b, err := json.Marshal(k)
	if err != nil {
		panic(fmt.Sprintf("encoding: json encode key: %v", err))
	}

	return b
}

func (JSONKey[K]) DecodeKey(b []byte) (K, error) {
	var k K

	err := json.Unmarshal(b, &k)
	if err != nil {
		return k, fmt.Errorf("encoding: json decode key: %w", err)
	}

	return k, nil
}
