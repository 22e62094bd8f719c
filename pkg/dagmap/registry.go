// Package dagmap implements DagMap: a lineage of RawMaps where each node
// reads through a chain of live ancestors and writes only to itself, can
// be collapsed ("pruned") into a fresh genesis node, and reclaims dead
// branches through an async cleaner rather than blocking foreground
// callers.
package dagmap

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/vsdb/pkg/dagmap/cleaner"
	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// Registry is the shared home for every DagMap node's metadata and the
// single point that hands off dead prefixes to the async cleaner. All
// Node values sharing a Registry form one address space of lineages.
type Registry struct {
	eng     *engine.Engine
	meta    rawmap.RawMap
	cleaner *cleaner.Cleaner
}

// NewRegistry creates a Registry backed by eng, reclaiming dead node
// ranges through cl.
func NewRegistry(eng *engine.Engine, cl *cleaner.Cleaner) *Registry {
	return &Registry{eng: eng, meta: rawmap.FromPrefix(eng, metaPrefix), cleaner: cl}
}

// New allocates a fresh node. If parent is nil, the new node is a
// genesis (no ancestors); otherwise it is registered as a child of
// parent.
func (r *Registry) New(ctx context.Context, parent *Node) (*Node, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: allocate node id: %v", ErrStorage, err)
	}

	data, err := rawmap.New(ctx, r.eng)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate node data prefix: %v", ErrStorage, err)
	}

	var parentID *uuid.UUID

	if parent != nil {
		pid := parent.id
		parentID = &pid
	}

	m := nodeMeta{Parent: parentID, Prefix: data.Prefix().Uint64(), Alive: true}

	err = r.putMeta(ctx, id, m)
	if err != nil {
		return nil, err
	}

	if parent != nil {
		err = r.addChild(ctx, parent.id, id)
		if err != nil {
			return nil, err
		}
	}

	return &Node{reg: r, id: id}, nil
}

// Get rehydrates a Node handle for an id previously returned by Node.ID.
// It does not verify the node is alive - use IsDead for that.
func (r *Registry) Get(id uuid.UUID) *Node {
	return &Node{reg: r, id: id}
}

// destroySubtree marks id and every live descendant dead, enqueuing each
// one's data prefix for asynchronous reclamation. It does not unlink id
// from its parent's children list - callers that are destroying id as a
// single, standalone node (not as part of destroying id's own parent
// too) must do that themselves first.
func (r *Registry) destroySubtree(ctx context.Context, id uuid.UUID) error {
	m, found, err := r.getMeta(ctx, id)
	if err != nil {
		return err
	}

	if !found || !m.Alive {
		return nil
	}

	children := m.Children
	m.Alive = false

	err = r.putMeta(ctx, id, m)
	if err != nil {
		return err
	}

	err = r.cleaner.Enqueue(rawmap.NewPrefix(m.Prefix))
	if err != nil {
		return fmt.Errorf("%w: enqueue reclamation: %v", ErrStorage, err)
	}

	for _, child := range children {
		err = r.destroySubtree(ctx, child)
		if err != nil {
			return err
		}
	}

	return nil
}
