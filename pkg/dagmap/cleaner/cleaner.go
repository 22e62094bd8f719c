// Package cleaner implements the async reclamation worker that deletes a
// dead DagMap node's key range in the background, so foreground
// destroy/prune calls never block on a potentially large scan-and-delete.
package cleaner

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/calvinalkan/vsdb/pkg/engine"
	"github.com/calvinalkan/vsdb/pkg/fs"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

const jobQueueCapacity = 256

// Cleaner consumes a queue of dead prefixes and deletes their key ranges
// in the background on a single dedicated goroutine. Enqueue blocks for
// the journal write and, while jobQueueCapacity jobs are already queued,
// until the worker takes the next one (or until Close).
type Cleaner struct {
	eng     *engine.Engine
	journal *journal
	jobs    chan rawmap.Prefix
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// New starts a Cleaner backed by eng, persisting its pending-job journal
// at journalPath. Any jobs left pending by a previous crash are resumed
// immediately.
func New(eng *engine.Engine, fsys fs.FS, journalPath string) (*Cleaner, error) {
	j, err := openJournal(fsys, journalPath)
	if err != nil {
		return nil, err
	}

	c := &Cleaner{
		eng:     eng,
		journal: j,
		jobs:    make(chan rawmap.Prefix, jobQueueCapacity),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)

	go c.run()

	for _, p := range j.Pending() {
		c.jobs <- p
	}

	return c, nil
}

// Enqueue records prefix as dead and schedules its key range for
// deletion. Returns once the journal write durably records the job; the
// actual deletion happens asynchronously.
func (c *Cleaner) Enqueue(prefix rawmap.Prefix) error {
	err := c.journal.Append(prefix)
	if err != nil {
		return fmt.Errorf("cleaner: enqueue: %w", err)
	}

	select {
	case c.jobs <- prefix:
	case <-c.done:
	}

	return nil
}

func (c *Cleaner) run() {
	defer c.wg.Done()

	for {
		select {
		case prefix, ok := <-c.jobs:
			if !ok {
				return
			}

			c.process(prefix)
		case <-c.done:
			return
		}
	}
}

// process deletes everything under prefix. Errors are logged and
// dropped, never propagated - per the cleaner's contract it must never
// stall or crash the foreground, and a prefix that fails to delete stays
// in the journal so a later run (or a future Enqueue retry) can pick it
// back up.
func (c *Cleaner) process(prefix rawmap.Prefix) {
	ctx := context.Background()

	err := deleteRange(ctx, c.eng, prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vsdb: dagmap cleaner: delete prefix %d: %v\n", prefix.Uint64(), err)
		return
	}

	err = c.journal.Remove(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vsdb: dagmap cleaner: clear journal entry for prefix %d: %v\n", prefix.Uint64(), err)
	}
}

const deleteChunkSize = 1000

// deleteRange removes every engine entry under prefix, in bounded-size
// batches so a single dead node with millions of keys doesn't hold one
// giant transaction open.
func deleteRange(ctx context.Context, eng *engine.Engine, prefix rawmap.Prefix) error {
	for {
		entries, err := eng.Iter(ctx, prefix.Bytes())
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		chunk := entries
		if len(chunk) > deleteChunkSize {
			chunk = chunk[:deleteChunkSize]
		}

		ops := make([]engine.WriteOp, len(chunk))
		for i, e := range chunk {
			ops[i] = engine.WriteOp{Key: e.Key}
		}

		err = eng.BatchWrite(ctx, ops)
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}

		if len(entries) <= deleteChunkSize {
			return nil
		}
	}
}

// Close stops accepting new work, waits for the current job to finish,
// and releases the journal lock. Jobs still queued (not yet started) are
// abandoned - they remain in the journal and are resumed by the next New.
func (c *Cleaner) Close() error {
	c.once.Do(func() { close(c.done) })

	c.wg.Wait()

	return c.journal.Close()
}
