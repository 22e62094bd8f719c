package vsdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/vsdb"
	"github.com/calvinalkan/vsdb/pkg/encoding"
)

func TestVec_PushPopOrder(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	v, err := vsdb.NewVec[int](ctx, eng, encoding.JSONValue[int]{})
	require.NoError(t, err)

	const count = 500

	for i := range count {
		require.NoError(t, v.Push(ctx, i))
	}

	n, err := v.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(count), n)

	for i := count - 1; i >= 0; i-- {
		value, ok, err := v.Pop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, value)
	}

	_, ok, err := v.Pop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVec_SwapRemove(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	v, err := vsdb.NewVec[int](ctx, eng, encoding.JSONValue[int]{})
	require.NoError(t, err)

	const count = 500

	for i := range count {
		require.NoError(t, v.Push(ctx, i))
	}

	removed, err := v.SwapRemove(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	n, err := v.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(count-1), n)

	first, err := v.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, count-1, first)
}

func TestVec_InsertAndRemove_ShiftContiguousIndices(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	v, err := vsdb.NewVec[string](ctx, eng, encoding.JSONValue[string]{})
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "d"} {
		require.NoError(t, v.Push(ctx, s))
	}

	require.NoError(t, v.Insert(ctx, 2, "c"))

	var got []string

	err = v.Iter(ctx, func(index uint64, value string) error {
		got = append(got, value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, got)

	removed, err := v.Remove(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "b", removed)

	got = nil

	err = v.Iter(ctx, func(index uint64, value string) error {
		got = append(got, value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, got)
}

func TestVec_Get_OutOfRange_Panics(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	v, err := vsdb.NewVec[int](ctx, eng, encoding.JSONValue[int]{})
	require.NoError(t, err)

	require.NoError(t, v.Push(ctx, 1))

	require.Panics(t, func() {
		_, _ = v.Get(ctx, 5)
	})
}

func TestVec_Last(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	v, err := vsdb.NewVec[int](ctx, eng, encoding.JSONValue[int]{})
	require.NoError(t, err)

	_, ok, err := v.Last(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, v.Push(ctx, 1))
	require.NoError(t, v.Push(ctx, 2))

	last, ok, err := v.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, last)
}
