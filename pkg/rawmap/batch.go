package rawmap

import (
	"context"
	"fmt"

	"github.com/calvinalkan/vsdb/pkg/engine"
)

// Batch accumulates a sequence of inserts and removals to apply as a
// single atomic transaction against the engine, mirroring the commit-log
// shape the engine itself uses internally for its own write-ahead batches.
// A Batch is not safe for concurrent use.
type Batch struct {
	m    RawMap
	ops  []engine.WriteOp
	seen map[string]int // userKey string -> index into ops, for last-write-wins collapsing
}

// Batch starts a new batch of operations against m.
func (m RawMap) Batch() *Batch {
	return &Batch{m: m, seen: make(map[string]int)}
}

// Put stages an insert or update of key to value.
func (b *Batch) Put(key, value []byte) *Batch {
	b.stage(key, value)

	return b
}

// Delete stages a removal of key.
func (b *Batch) Delete(key []byte) *Batch {
	b.stage(key, nil)

	return b
}

func (b *Batch) stage(key, value []byte) {
	k := string(key)

	op := engine.WriteOp{Key: b.m.prefix.EngineKey(key), Value: value}

	if idx, ok := b.seen[k]; ok {
		b.ops[idx] = op
		return
	}

	b.seen[k] = len(b.ops)
	b.ops = append(b.ops, op)
}

// Commit applies every staged operation atomically and updates the cached
// length by the net number of entries that came into or went out of
// existence. Operations are applied in staged order, last write per key
// wins.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	var delta int64

	for _, op := range b.ops {
		_, hadPrev, err := b.m.eng.Get(ctx, op.Key)
		if err != nil {
			return fmt.Errorf("%w: batch: %v", ErrStorage, err)
		}

		switch {
		case op.Value == nil && hadPrev:
			delta--
		case op.Value != nil && !hadPrev:
			delta++
		}
	}

	err := b.m.eng.BatchWrite(ctx, b.ops)
	if err != nil {
		return fmt.Errorf("%w: batch commit: %v", ErrStorage, err)
	}

	if delta == 0 {
		return nil
	}

	return b.m.adjustLen(ctx, delta)
}
