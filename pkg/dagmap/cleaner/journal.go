package cleaner

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/calvinalkan/vsdb/pkg/fs"
	"github.com/calvinalkan/vsdb/pkg/rawmap"
)

// journal persists the set of prefixes queued for deletion but not yet
// reclaimed, so a crash between "enqueued" and "deleted" can be resumed
// on the next startup instead of leaking the prefix forever. The file is
// a flat sequence of 8-byte big-endian prefixes; Append/Remove rewrite it
// atomically via fs.AtomicWriter.
//
// The journal is deliberately a standalone file rather than engine rows
// under a reserved prefix: the whole point of the journal is to recover
// from a crash that interrupted the engine's own reclamation work, so its
// own durability can't depend on the store it exists to protect.
type journal struct {
	path   string
	fsys   fs.FS
	writer *fs.AtomicWriter
	lock   *fs.Locker
	guard  *fs.Lock

	mu      sync.Mutex
	pending map[uint64]struct{}
}

func openJournal(fsys fs.FS, path string) (*journal, error) {
	locker := fs.NewLocker(fsys)

	guard, err := locker.Lock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("cleaner: lock journal: %w", err)
	}

	j := &journal{
		path:   path,
		fsys:   fsys,
		writer: fs.NewAtomicWriter(fsys),
		lock:   locker,
		guard:  guard,
	}

	pending, err := j.load()
	if err != nil {
		_ = guard.Close()

		return nil, err
	}

	j.pending = pending

	return j, nil
}

func (j *journal) load() (map[uint64]struct{}, error) {
	data, err := j.fsys.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[uint64]struct{}), nil
	}

	if err != nil {
		return nil, fmt.Errorf("cleaner: read journal: %w", err)
	}

	if len(data)%8 != 0 {
		return nil, fmt.Errorf("cleaner: corrupt journal %q: length %d not a multiple of 8", j.path, len(data))
	}

	out := make(map[uint64]struct{}, len(data)/8)

	for i := 0; i+8 <= len(data); i += 8 {
		out[binary.BigEndian.Uint64(data[i:i+8])] = struct{}{}
	}

	return out, nil
}

// Pending returns every prefix recorded as queued-but-not-yet-reclaimed,
// for example because the process crashed mid-cleanup.
func (j *journal) Pending() []rawmap.Prefix {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]rawmap.Prefix, 0, len(j.pending))
	for p := range j.pending {
		out = append(out, rawmap.NewPrefix(p))
	}

	return out
}

// Append records prefix as queued, persisting before the caller hands
// the job to the worker goroutine.
func (j *journal) Append(prefix rawmap.Prefix) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.pending[prefix.Uint64()] = struct{}{}

	return j.flushLocked()
}

// Remove clears prefix from the journal once its keys have actually been
// deleted.
func (j *journal) Remove(prefix rawmap.Prefix) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.pending, prefix.Uint64())

	return j.flushLocked()
}

func (j *journal) flushLocked() error {
	buf := make([]byte, 0, 8*len(j.pending))

	for p := range j.pending {
		var b [8]byte

		binary.BigEndian.PutUint64(b[:], p)
		buf = append(buf, b[:]...)
	}

	err := j.writer.Write(j.path, bytes.NewReader(buf), j.writer.DefaultOptions())
	if err != nil {
		return fmt.Errorf("cleaner: write journal: %w", err)
	}

	return nil
}

func (j *journal) Close() error {
	return j.guard.Close()
}
