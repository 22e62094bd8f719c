package rawmap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/engine"
)

// Entry is a decoded (userKey, value) pair returned by iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iterator walks a RawMap's entries in ascending byte order and supports
// being consumed from either end (spec.md requires double-ended
// iterators). It is a point-in-time snapshot taken when the iterator is
// created - concurrent modifications are not reflected, matching the
// "weak snapshot, no iterator invalidation" behavior spec.md section 5
// describes for the underlying engine.
type Iterator struct {
	entries []Entry
	lo, hi  int // [lo, hi) is the remaining window
}

// Next returns the next entry in ascending order, or (Entry{}, false) when
// exhausted.
func (it *Iterator) Next() (Entry, bool) {
	if it.lo >= it.hi {
		return Entry{}, false
	}

	e := it.entries[it.lo]
	it.lo++

	return e, true
}

// NextBack returns the next entry in descending order (from the high end
// of the remaining window), or (Entry{}, false) when exhausted.
func (it *Iterator) NextBack() (Entry, bool) {
	if it.lo >= it.hi {
		return Entry{}, false
	}

	it.hi--

	return it.entries[it.hi], true
}

// Iter returns an ascending, double-ended iterator over all entries.
func (m RawMap) Iter(ctx context.Context) (*Iterator, error) {
	entries, err := m.eng.Iter(ctx, m.prefix.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: iter: %v", ErrStorage, err)
	}

	return m.toIterator(entries), nil
}

// Range returns an ascending, double-ended iterator over entries with
// lo <= key < hi (half-open). A nil hi means unbounded above.
func (m RawMap) Range(ctx context.Context, lo, hi []byte) (*Iterator, error) {
	engLo := m.prefix.EngineKey(lo)

	var engHi []byte
	if hi != nil {
		engHi = m.prefix.EngineKey(hi)
	} else {
		engHi = nil
	}

	entries, err := m.eng.Range(ctx, engLo, engHi)
	if err != nil {
		return nil, fmt.Errorf("%w: range: %v", ErrStorage, err)
	}

	// Engine.Range with a nil hi is unbounded over the whole table, not
	// just this prefix - clip back to entries that still belong to us.
	if hi == nil {
		entries = clipToPrefix(entries, m.prefix)
	}

	return m.toIterator(entries), nil
}

func (m RawMap) toIterator(raw []engine.Entry) *Iterator {
	entries := make([]Entry, len(raw))
	for i, e := range raw {
		entries[i] = Entry{Key: m.prefix.UserKey(e.Key), Value: e.Value}
	}

	return &Iterator{entries: entries, hi: len(entries)}
}

// GetGe returns the smallest entry with key >= k, or (Entry{}, false) if
// none exists.
func (m RawMap) GetGe(ctx context.Context, k []byte) (Entry, bool, error) {
	it, err := m.Range(ctx, k, nil)
	if err != nil {
		return Entry{}, false, err
	}

	e, ok := it.Next()

	return e, ok, nil
}

// GetLe returns the largest entry with key <= k, or (Entry{}, false) if
// none exists.
func (m RawMap) GetLe(ctx context.Context, k []byte) (Entry, bool, error) {
	value, found, err := m.Get(ctx, k)
	if err != nil {
		return Entry{}, false, err
	}

	if found {
		return Entry{Key: append([]byte{}, k...), Value: value}, true, nil
	}

	it, err := m.Range(ctx, nil, k)
	if err != nil {
		return Entry{}, false, err
	}

	e, ok := it.NextBack()

	return e, ok, nil
}

func clipToPrefix(raw []engine.Entry, p Prefix) []engine.Entry {
	upper := make([]byte, 8)
	copy(upper, p[:])

	hasUpper := false

	for i := 7; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			hasUpper = true

			break
		}
	}

	if !hasUpper {
		return raw
	}

	out := raw[:0:0]

	for _, e := range raw {
		if bytes.Compare(e.Key, upper) < 0 {
			out = append(out, e)
		}
	}

	return out
}
