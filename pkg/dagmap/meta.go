package dagmap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// metaPrefix is the reserved namespace (see rawmap.FirstUserPrefix) every
// Registry uses to persist node metadata - one entry per node, keyed by
// its 16-byte UUID.
var metaPrefix = rawmap.NewPrefix(1)

// nodeMeta is a node's persisted bookkeeping record: everything about a
// node except its actual key/value data, which lives in its own RawMap
// at Prefix.
type nodeMeta struct {
	Parent   *uuid.UUID  `json:"parent,omitempty"`
	Prefix   uint64      `json:"prefix"`
	Children []uuid.UUID `json:"children,omitempty"`
	Alive    bool        `json:"alive"`
}

func (r *Registry) getMeta(ctx context.Context, id uuid.UUID) (nodeMeta, bool, error) {
	raw, found, err := r.meta.Get(ctx, id[:])
	if err != nil {
		return nodeMeta{}, false, fmt.Errorf("%w: read node metadata: %v", ErrStorage, err)
	}

	if !found {
		return nodeMeta{}, false, nil
	}

	var m nodeMeta

	err = json.Unmarshal(raw, &m)
	if err != nil {
		return nodeMeta{}, false, fmt.Errorf("%w: decode node metadata: %v", ErrStorage, err)
	}

	return m, true, nil
}

func (r *Registry) putMeta(ctx context.Context, id uuid.UUID, m nodeMeta) error {
	encoded, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode node metadata: %v", ErrStorage, err)
	}

	_, _, err = r.meta.Insert(ctx, id[:], encoded)
	if err != nil {
		return fmt.Errorf("%w: write node metadata: %v", ErrStorage, err)
	}

	return nil
}

func (r *Registry) addChild(ctx context.Context, parent, child uuid.UUID) error {
	m, found, err := r.getMeta(ctx, parent)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: parent %s has no metadata", ErrStorage, parent)
	}

	m.Children = append(m.Children, child)

	return r.putMeta(ctx, parent, m)
}

func (r *Registry) removeChild(ctx context.Context, parent, child uuid.UUID) error {
	m, found, err := r.getMeta(ctx, parent)
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	filtered := m.Children[:0]

	for _, c := range m.Children {
		if c != child {
			filtered = append(filtered, c)
		}
	}

	m.Children = filtered

	return r.putMeta(ctx, parent, m)
}
