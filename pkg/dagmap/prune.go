package dagmap

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

type chainStep struct {
	id uuid.UUID
	m  nodeMeta
}

// Prune collapses n plus its chain of live ancestors (the "mainline")
// into a single new genesis node holding the mainline's effective view -
// the same values Get would have returned at n for every key any
// mainline node ever touched. Every mainline node is then marked dead
// and its data enqueued for reclamation; every off-mainline sibling
// subtree hanging off an ancestor is destroyed outright. n's own
// children, if any, are left alone - they become orphaned, since their
// parent (n) is now dead, consistent with the lineage invariant that a
// pruned-away parent orphans its children rather than destroying them.
func (n *Node) Prune(ctx context.Context) (*Node, error) {
	chain, err := n.mainlineChain(ctx)
	if err != nil {
		return nil, err
	}

	merged, err := mergeEffectiveView(ctx, n.reg, chain)
	if err != nil {
		return nil, err
	}

	head, err := n.reg.New(ctx, nil)
	if err != nil {
		return nil, err
	}

	if len(merged) > 0 {
		headMeta, found, err := n.reg.getMeta(ctx, head.id)
		if err != nil {
			return nil, err
		}

		if !found {
			return nil, fmt.Errorf("%w: new genesis node has no metadata", ErrStorage)
		}

		err = writeBatch(ctx, n.reg.dataOf(headMeta), merged)
		if err != nil {
			return nil, err
		}
	}

	err = n.collapseMainline(ctx, chain)
	if err != nil {
		return nil, err
	}

	return head, nil
}

func (n *Node) mainlineChain(ctx context.Context) ([]chainStep, error) {
	var chain []chainStep

	cur := n.id

	for {
		m, found, err := n.reg.getMeta(ctx, cur)
		if err != nil {
			return nil, err
		}

		if !found || !m.Alive {
			return nil, fmt.Errorf("%w: prune: node %s", ErrDead, cur)
		}

		chain = append(chain, chainStep{id: cur, m: m})

		if m.Parent == nil {
			return chain, nil
		}

		cur = *m.Parent
	}
}

// mergeEffectiveView scans every node in chain (ordered from n outward
// to genesis) and returns the merged key/value view: for each key, the
// value from the node closest to n wins, and a tombstone at any level
// removes the key from the result entirely.
func mergeEffectiveView(ctx context.Context, reg *Registry, chain []chainStep) (map[string][]byte, error) {
	merged := make(map[string][]byte)
	resolved := make(map[string]struct{})

	for _, step := range chain {
		it, err := reg.dataOf(step.m).Iter(ctx)
		if err != nil {
			return nil, err
		}

		for e, ok := it.Next(); ok; e, ok = it.Next() {
			key := string(e.Key)

			if _, done := resolved[key]; done {
				continue
			}

			resolved[key] = struct{}{}

			if isTombstone(e.Value) {
				continue
			}

			merged[key] = append([]byte{}, e.Value...)
		}
	}

	return merged, nil
}

func writeBatch(ctx context.Context, m rawmap.RawMap, entries map[string][]byte) error {
	batch := m.Batch()

	for k, v := range entries {
		batch.Put([]byte(k), v)
	}

	err := batch.Commit(ctx)
	if err != nil {
		return fmt.Errorf("%w: write merged view: %v", ErrStorage, err)
	}

	return nil
}

// collapseMainline marks every node in chain dead and enqueues its data
// for reclamation, and destroys every off-mainline sibling subtree
// hanging off an ancestor (the child sets of chain[1:], minus the
// mainline continuation itself).
func (n *Node) collapseMainline(ctx context.Context, chain []chainStep) error {
	for i, step := range chain {
		if i > 0 {
			for _, child := range step.m.Children {
				if child == chain[i-1].id {
					continue
				}

				err := n.reg.destroySubtree(ctx, child)
				if err != nil {
					return err
				}
			}
		}

		step.m.Alive = false

		err := n.reg.putMeta(ctx, step.id, step.m)
		if err != nil {
			return err
		}

		err = n.reg.cleaner.Enqueue(rawmap.NewPrefix(step.m.Prefix))
		if err != nil {
			return fmt.Errorf("%w: enqueue reclamation: %v", ErrStorage, err)
		}
	}

	return nil
}
