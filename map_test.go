package vsdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/vsdb"
	"github.com/calvinalkan/vsdb/pkg/encoding"
	"github.com/calvinalkan/vsdb/pkg/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	eng, err := engine.OpenForTest(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = eng.Close() })

	return eng
}

func TestMap_InsertGetRemove(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewMap[string, int](ctx, eng, encoding.StringKey{}, encoding.JSONValue[int]{})
	require.NoError(t, err)

	_, hadPrev, err := m.Insert(ctx, "a", 1)
	require.NoError(t, err)
	require.False(t, hadPrev)

	value, found, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, value)

	prev, hadPrev, err := m.Insert(ctx, "a", 2)
	require.NoError(t, err)
	require.True(t, hadPrev)
	require.Equal(t, 1, prev)

	removed, hadPrev, err := m.Remove(ctx, "a")
	require.NoError(t, err)
	require.True(t, hadPrev)
	require.Equal(t, 2, removed)

	empty, err := m.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestMap_GetMut_WritesBackOnClose(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewMap[string, int](ctx, eng, encoding.StringKey{}, encoding.JSONValue[int]{})
	require.NoError(t, err)

	_, _, err = m.Insert(ctx, "counter", 1)
	require.NoError(t, err)

	found, err := m.Update(ctx, "counter", func(v *int) { *v += 41 })
	require.NoError(t, err)
	require.True(t, found)

	value, found, err := m.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42, value)
}

func TestMap_GetMut_DoubleCloseIsNoOp(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewMap[string, int](ctx, eng, encoding.StringKey{}, encoding.JSONValue[int]{})
	require.NoError(t, err)

	_, _, err = m.Insert(ctx, "a", 1)
	require.NoError(t, err)

	guard, found, err := m.GetMut(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)

	*guard.Value() = 5

	require.NoError(t, guard.Close())
	require.NoError(t, guard.Close())

	value, _, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 5, value)
}

func TestMap_AsBytes_FromBytes_RoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewMap[string, int](ctx, eng, encoding.StringKey{}, encoding.JSONValue[int]{})
	require.NoError(t, err)

	_, _, err = m.Insert(ctx, "a", 7)
	require.NoError(t, err)

	restored, err := vsdb.MapFromBytes[string, int](eng, m.AsBytes(), encoding.StringKey{}, encoding.JSONValue[int]{})
	require.NoError(t, err)

	value, found, err := restored.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 7, value)
}

func TestOrdMap_RangeAndBoundaries(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewOrdMap[uint64, string](ctx, eng, encoding.Uint64Key{}, encoding.JSONValue[string]{})
	require.NoError(t, err)

	for _, k := range []uint64{10, 20, 30, 40} {
		_, _, err := m.Insert(ctx, k, "v")
		require.NoError(t, err)
	}

	var keys []uint64

	err = m.Range(ctx, 15, 40, func(e vsdb.MapEntry[uint64, string]) error {
		keys = append(keys, e.Key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{20, 30}, keys)

	ge, found, err := m.GetGe(ctx, 25)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(30), ge.Key)

	le, found, err := m.GetLe(ctx, 25)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(20), le.Key)

	first, found, err := m.First(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(10), first.Key)

	last, found, err := m.Last(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(40), last.Key)
}

func TestOrdMap_FirstLast_EmptyMap(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	m, err := vsdb.NewOrdMap[uint64, string](ctx, eng, encoding.Uint64Key{}, encoding.JSONValue[string]{})
	require.NoError(t, err)

	_, found, err := m.First(ctx)
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = m.Last(ctx)
	require.NoError(t, err)
	require.False(t, found)
}
