package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/vsdb/pkg/fs"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	eng, err := openAt(context.Background(), fs.NewReal(), t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = eng.Close() })

	return eng
}

func TestEngine_PutGetDelete(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	_, found, err := eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, eng.Put(ctx, []byte("k"), []byte("v1")))

	value, found, err := eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, eng.Put(ctx, []byte("k"), []byte("v2")))

	value, found, err = eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), value)

	require.NoError(t, eng.Delete(ctx, []byte("k")))

	_, found, err = eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestEngine_IterOrdersByByteKey(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	prefix := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00}

	for _, b := range [][]byte{{0x50}, {0x01}, {0x06}, {0x04}} {
		key := append(append([]byte{}, prefix...), b...)
		require.NoError(t, eng.Put(ctx, key, []byte{0x01}))
	}

	entries, err := eng.Iter(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	want := []byte{0x01, 0x04, 0x06, 0x50}
	for i, entry := range entries {
		require.Equal(t, want[i], entry.Key[len(prefix)])
	}
}

func TestEngine_BatchWriteIsAtomic(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Put(ctx, []byte("a"), []byte("1")))

	ops := []WriteOp{
		{Key: []byte("a"), Value: nil},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}

	require.NoError(t, eng.BatchWrite(ctx, ops))

	_, found, err := eng.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, found)

	value, found, err := eng.Get(ctx, []byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("2"), value)
}

func TestEngine_AllocateIDIsMonotonic(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.AllocateID(ctx, "prefix", 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), first)

	second, err := eng.AllocateID(ctx, "prefix", 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(4097), second)

	third, err := eng.AllocateID(ctx, "prefix", 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(4098), third)
}

func TestEngine_RangeIsHalfOpen(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	ctx := context.Background()

	for _, k := range []byte{0x01, 0x04, 0x06, 0x50} {
		require.NoError(t, eng.Put(ctx, []byte{k}, []byte{k}))
	}

	entries, err := eng.Range(ctx, []byte{0x02}, []byte{0x0A})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte{0x04}, entries[0].Key)
	require.Equal(t, []byte{0x06}, entries[1].Key)

	entries, err = eng.Range(ctx, []byte{}, []byte{0x01})
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestSetBaseDir_IdempotentOnSameValue(t *testing.T) {
	resetBaseDirForTest()
	t.Cleanup(resetBaseDirForTest)

	dir := t.TempDir()

	require.NoError(t, SetBaseDir(dir))
	require.NoError(t, SetBaseDir(dir))

	got, err := BaseDir()
	require.NoError(t, err)
	require.Equal(t, dir, got)
}

func TestSetBaseDir_RejectsContradictoryChange(t *testing.T) {
	resetBaseDirForTest()
	t.Cleanup(resetBaseDirForTest)

	require.NoError(t, SetBaseDir(t.TempDir()))

	err := SetBaseDir(t.TempDir())
	require.ErrorIs(t, err, ErrBaseDirChanged)
}
