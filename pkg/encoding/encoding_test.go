package encoding_test

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/vsdb/pkg/encoding"
)

func TestUint64Key_PreservesOrder(t *testing.T) {
	values := []uint64{0, 1, 2, 255, 256, math.MaxUint32, math.MaxUint64}

	var codec encoding.Uint64Key

	assertOrderPreserved(t, values, codec.EncodeKey)
}

func TestInt64Key_PreservesOrder(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}

	var codec encoding.Int64Key

	assertOrderPreserved(t, values, codec.EncodeKey)
}

func TestFloat64Key_PreservesOrder(t *testing.T) {
	values := []float64{
		math.Inf(-1), -1e300, -1.5, -0.0001, 0, 0.0001, 1.5, 1e300, math.Inf(1),
	}

	var codec encoding.Float64Key

	assertOrderPreserved(t, values, codec.EncodeKey)
}

func TestInt64Key_RoundTrip(t *testing.T) {
	var codec encoding.Int64Key

	r := rand.New(rand.NewSource(1))

	for range 100 {
		v := int64(r.Uint64())

		decoded, err := codec.DecodeKey(codec.EncodeKey(v))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestUint64Key_RoundTrip(t *testing.T) {
	var codec encoding.Uint64Key

	r := rand.New(rand.NewSource(1))

	for range 100 {
		v := r.Uint64()

		decoded, err := codec.DecodeKey(codec.EncodeKey(v))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestFloat64Key_RoundTrip(t *testing.T) {
	var codec encoding.Float64Key

	for _, v := range []float64{0, -0.0, 1.5, -1.5, math.Inf(1), math.Inf(-1), math.MaxFloat64, -math.MaxFloat64} {
		decoded, err := codec.DecodeKey(codec.EncodeKey(v))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestTupleKey_PreservesOrder(t *testing.T) {
	codec := encoding.TupleKey[uint64, string]{First: encoding.Uint64Key{}, Second: encoding.StringKey{}}

	values := []encoding.Tuple[uint64, string]{
		{First: 1, Second: "a"},
		{First: 1, Second: "b"},
		{First: 1, Second: "z"},
		{First: 2, Second: "a"},
		{First: 2, Second: "aa"},
		{First: 3, Second: ""},
	}

	assertOrderPreserved(t, values, codec.EncodeKey)
}

func TestTupleKey_RoundTrip(t *testing.T) {
	codec := encoding.TupleKey[int64, uint64]{First: encoding.Int64Key{}, Second: encoding.Uint64Key{}}

	want := encoding.Tuple[int64, uint64]{First: -42, Second: 7}

	decoded, err := codec.DecodeKey(codec.EncodeKey(want))
	require.NoError(t, err)
	require.Equal(t, want, decoded)
}

func TestPairKey_IsTupleKey(t *testing.T) {
	var codec encoding.PairKey[string, string]

	codec.First = encoding.StringKey{}
	codec.Second = encoding.StringKey{}

	want := encoding.Tuple[string, string]{First: "k1", Second: "k2"}

	decoded, err := codec.DecodeKey(codec.EncodeKey(want))
	require.NoError(t, err)
	require.Equal(t, want, decoded)
}

func TestStringKey_RoundTrip(t *testing.T) {
	var codec encoding.StringKey

	decoded, err := codec.DecodeKey(codec.EncodeKey("hello world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", decoded)
}

func TestJSONValue_RoundTrip(t *testing.T) {
	type payload struct {
		A int
		B string
	}

	var codec encoding.JSONValue[payload]

	encoded, err := codec.EncodeValue(payload{A: 1, B: "x"})
	require.NoError(t, err)

	decoded, err := codec.DecodeValue(encoded)
	require.NoError(t, err)
	require.Equal(t, payload{A: 1, B: "x"}, decoded)
}

func assertOrderPreserved[T any](t *testing.T, sortedValues []T, encode func(T) []byte) {
	t.Helper()

	encoded := make([][]byte, len(sortedValues))
	for i, v := range sortedValues {
		encoded[i] = encode(v)
	}

	require.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))
}
