package dagmap

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// Node is a handle to one lineage node. It is a small value referencing
// shared Registry state, safe to pass by value and to read concurrently.
type Node struct {
	reg *Registry
	id  uuid.UUID
}

// ID returns this node's identity, stable for its lifetime and suitable
// for persisting (e.g. as a handle serialized elsewhere) and later
// rehydrating via Registry.Get.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// Get returns this node's value for key if present; otherwise walks up
// through live ancestors until one has it or the chain ends. A
// tombstone at any level hides every ancestor's value for that key.
func (n *Node) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	cur := n.id

	for {
		m, found, err := n.reg.getMeta(ctx, cur)
		if err != nil {
			return nil, false, err
		}

		if !found || !m.Alive {
			return nil, false, nil
		}

		data := n.reg.dataOf(m)

		value, found, err := data.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}

		if found {
			if isTombstone(value) {
				return nil, false, nil
			}

			return value, true, nil
		}

		if m.Parent == nil {
			return nil, false, nil
		}

		cur = *m.Parent
	}
}

// Insert writes value for key into this node's own RawMap only - a
// copy-on-write overlay over whatever its ancestors hold.
func (n *Node) Insert(ctx context.Context, key, value []byte) error {
	m, err := n.requireAlive(ctx)
	if err != nil {
		return err
	}

	_, _, err = n.reg.dataOf(m).Insert(ctx, key, value)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStorage, err)
	}

	return nil
}

// Remove writes a tombstone for key into this node's own RawMap, hiding
// any ancestor value during subsequent Get calls at this node or its
// descendants.
func (n *Node) Remove(ctx context.Context, key []byte) error {
	m, err := n.requireAlive(ctx)
	if err != nil {
		return err
	}

	_, _, err = n.reg.dataOf(m).Insert(ctx, key, tombstone)
	if err != nil {
		return fmt.Errorf("%w: remove: %v", ErrStorage, err)
	}

	return nil
}

// ValueGuard borrows a value read through Get for mutation, writing it
// back into this node's own overlay on Close - promoting an inherited
// value into this node the same way a direct Insert would.
type ValueGuard struct {
	value  []byte
	closed bool
	commit func([]byte) error
}

// Value returns a pointer to the borrowed value for in-place mutation.
func (g *ValueGuard) Value() *[]byte {
	return &g.value
}

// Close writes the (possibly mutated) value back. Idempotent.
func (g *ValueGuard) Close() error {
	if g.closed {
		return nil
	}

	g.closed = true

	return g.commit(g.value)
}

// GetMut returns a write-back guard over the effective value at key,
// read through the full ancestor chain the same way Get is. Returns
// (nil, false, nil) if no ancestor-or-self has the key.
func (n *Node) GetMut(ctx context.Context, key []byte) (*ValueGuard, bool, error) {
	value, found, err := n.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	return &ValueGuard{
		value:  value,
		commit: func(v []byte) error { return n.Insert(ctx, key, v) },
	}, true, nil
}

// IsDead reports whether this node has been destroyed or pruned away.
func (n *Node) IsDead(ctx context.Context) (bool, error) {
	m, found, err := n.reg.getMeta(ctx, n.id)
	if err != nil {
		return false, err
	}

	return !found || !m.Alive, nil
}

// NoChildren reports whether this node currently has zero live-or-dead
// registered children.
func (n *Node) NoChildren(ctx context.Context) (bool, error) {
	m, found, err := n.reg.getMeta(ctx, n.id)
	if err != nil {
		return false, err
	}

	if !found {
		return true, nil
	}

	return len(m.Children) == 0, nil
}

// Destroy marks this node and every descendant dead, enqueues their data
// for asynchronous reclamation, and unlinks this node from its parent's
// children set. A no-op if the node is already dead.
func (n *Node) Destroy(ctx context.Context) error {
	m, found, err := n.reg.getMeta(ctx, n.id)
	if err != nil {
		return err
	}

	if !found || !m.Alive {
		return nil
	}

	if m.Parent != nil {
		err = n.reg.removeChild(ctx, *m.Parent, n.id)
		if err != nil {
			return err
		}
	}

	return n.reg.destroySubtree(ctx, n.id)
}

// PruneChildrenInclude destroys exactly the children in ids (and their
// descendants), leaving every other child untouched.
func (n *Node) PruneChildrenInclude(ctx context.Context, ids []uuid.UUID) error {
	include := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		include[id] = struct{}{}
	}

	return n.pruneChildren(ctx, func(child uuid.UUID) bool {
		_, ok := include[child]
		return ok
	})
}

// PruneChildrenExclude destroys every child except those in ids.
func (n *Node) PruneChildrenExclude(ctx context.Context, ids []uuid.UUID) error {
	exclude := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		exclude[id] = struct{}{}
	}

	return n.pruneChildren(ctx, func(child uuid.UUID) bool {
		_, ok := exclude[child]
		return !ok
	})
}

func (n *Node) pruneChildren(ctx context.Context, destroy func(child uuid.UUID) bool) error {
	m, found, err := n.reg.getMeta(ctx, n.id)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	var kept []uuid.UUID

	for _, child := range m.Children {
		if destroy(child) {
			err = n.reg.destroySubtree(ctx, child)
			if err != nil {
				return err
			}

			continue
		}

		kept = append(kept, child)
	}

	m.Children = kept

	return n.reg.putMeta(ctx, n.id, m)
}

func (n *Node) requireAlive(ctx context.Context) (nodeMeta, error) {
	m, found, err := n.reg.getMeta(ctx, n.id)
	if err != nil {
		return nodeMeta{}, err
	}

	if !found || !m.Alive {
		return nodeMeta{}, ErrDead
	}

	return m, nil
}

func (r *Registry) dataOf(m nodeMeta) rawmap.RawMap {
	return rawmap.FromPrefix(r.eng, rawmap.NewPrefix(m.Prefix))
}
