package engine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/vsdb/pkg/fs"
)

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
// After this, operations return SQLITE_BUSY.
const sqliteBusyTimeout = 10000 // milliseconds

// Entry is a single ordered byte key/value pair returned by Iter/Range.
type Entry struct {
	Key   []byte
	Value []byte
}

// WriteOp is one operation inside a BatchWrite call: a Put when Value is
// non-nil, a Delete when Value is nil.
type WriteOp struct {
	Key   []byte
	Value []byte // nil means delete
}

// Engine is a thin, uniform facade over a persistent ordered key-value
// store. It is the single point every RawMap (and everything built on
// RawMap) funnels reads and writes through.
//
// Engine is safe for concurrent use by multiple goroutines: database/sql's
// connection pool together with SQLite's own WAL-mode locking is the
// synchronization point described in spec section 5.
type Engine struct {
	db     *sql.DB
	fsys   fs.FS
	mu     sync.Mutex // guards closed and serializes id allocation
	closed bool
}

var (
	singletonMu  sync.Mutex
	singletonEng *Engine
)

// Open returns the process-wide singleton Engine, opening it on first
// call. The store lives under BaseDir() in a file named "vsdb.sqlite".
// Subsequent calls return the same instance; the first caller's base
// directory sticks until Close.
func Open(ctx context.Context) (*Engine, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singletonEng != nil && !singletonEng.isClosed() {
		return singletonEng, nil
	}

	dir, err := BaseDir()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve base dir: %v", ErrStorage, err)
	}

	eng, err := openAt(ctx, fs.NewReal(), dir)
	if err != nil {
		return nil, err
	}

	singletonEng = eng

	return eng, nil
}

// OpenForTest opens a standalone Engine rooted at dir, bypassing the
// process-wide singleton Open uses. It exists so other packages' tests can
// get a fresh, isolated Engine per test (typically backed by t.TempDir())
// without contending over global state.
func OpenForTest(dir string) (*Engine, error) {
	return openAt(context.Background(), fs.NewReal(), dir)
}

// openAt opens (creating if necessary) an Engine rooted at dir using the
// given filesystem. Exposed at package-private scope so tests can exercise
// a fresh engine per test without touching the process-wide singleton.
func openAt(ctx context.Context, fsys fs.FS, dir string) (*Engine, error) {
	err := fsys.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("%w: create base dir: %v", ErrStorage, err)
	}

	dbPath := filepath.Join(dir, "vsdb.sqlite")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStorage, err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrStorage, err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	err = createSchema(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Engine{db: db, fsys: fsys}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA mmap_size = 268435456;
		PRAGMA cache_size = -20000;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("%w: apply pragmas: %v", ErrStorage, err)
	}

	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key   BLOB PRIMARY KEY,
			value BLOB NOT NULL
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS counters (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		) WITHOUT ROWID`,
	}

	for i, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("%w: schema statement %d: %v", ErrStorage, i+1, err)
		}
	}

	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

// Close releases the underlying SQLite connection. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true

	err := e.db.Close()
	if err != nil {
		return fmt.Errorf("%w: close sqlite: %v", ErrStorage, err)
	}

	return nil
}

// Flush forces durability of all prior writes via a WAL checkpoint.
func (e *Engine) Flush(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	if err != nil {
		return fmt.Errorf("%w: flush: %v", ErrStorage, err)
	}

	return nil
}

// Get retrieves the value stored under key, or (nil, false) if absent.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value []byte

	row := e.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)

	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", ErrStorage, err)
	}

	return value, true, nil
}

// Put stores value under key, creating or overwriting the entry.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: put: %v", ErrStorage, err)
	}

	return nil
}

// Delete removes key. No error if key was absent.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	_, err := e.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrStorage, err)
	}

	return nil
}

// Iter yields all entries whose key begins with prefix, in ascending byte
// order.
func (e *Engine) Iter(ctx context.Context, prefix []byte) ([]Entry, error) {
	upper := prefixUpperBound(prefix)
	if upper == nil {
		return e.scan(ctx, `SELECT key, value FROM kv WHERE key >= ? ORDER BY key ASC`, prefix)
	}

	return e.scan(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key ASC`, prefix, upper)
}

// Range yields all entries with lo <= key < hi, in ascending byte order. A
// nil hi means unbounded above.
func (e *Engine) Range(ctx context.Context, lo, hi []byte) ([]Entry, error) {
	if hi == nil {
		return e.scan(ctx, `SELECT key, value FROM kv WHERE key >= ? ORDER BY key ASC`, lo)
	}

	return e.scan(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key ASC`, lo, hi)
}

func (e *Engine) scan(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var entry Entry

		err := rows.Scan(&entry.Key, &entry.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrStorage, err)
		}

		out = append(out, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("%w: scan rows: %v", ErrStorage, err)
	}

	return out, nil
}

// BatchWrite applies all ops atomically with respect to crashes.
func (e *Engine) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin batch: %v", ErrStorage, err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	putStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("%w: prepare batch put: %v", ErrStorage, err)
	}
	defer func() { _ = putStmt.Close() }()

	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("%w: prepare batch delete: %v", ErrStorage, err)
	}
	defer func() { _ = delStmt.Close() }()

	for _, op := range ops {
		if op.Value != nil {
			_, err = putStmt.ExecContext(ctx, op.Key, op.Value)
		} else {
			_, err = delStmt.ExecContext(ctx, op.Key)
		}

		if err != nil {
			return fmt.Errorf("%w: batch op on key %x: %v", ErrStorage, op.Key, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("%w: commit batch: %v", ErrStorage, err)
	}

	committed = true

	return nil
}

// AllocateID returns the next value of a process-wide, crash-durable
// monotonic counter persisted under name. The first call for a given name
// creates it at start and returns start.
func (e *Engine) AllocateID(ctx context.Context, name string, start uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin allocate: %v", ErrStorage, err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current uint64

	row := tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name)

	err = row.Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = start

		_, err = tx.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES (?, ?)`, name, current+1)
		if err != nil {
			return 0, fmt.Errorf("%w: init counter %q: %v", ErrStorage, name, err)
		}
	case err != nil:
		return 0, fmt.Errorf("%w: read counter %q: %v", ErrStorage, name, err)
	default:
		_, err = tx.ExecContext(ctx, `UPDATE counters SET value = ? WHERE name = ?`, current+1, name)
		if err != nil {
			return 0, fmt.Errorf("%w: advance counter %q: %v", ErrStorage, name, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("%w: commit allocate: %v", ErrStorage, err)
	}

	committed = true

	return current, nil
}

// CounterValue reads the current value of a named counter, or (0, false)
// if it has never been set. Unlike AllocateID, it does not advance the
// counter. Used by RawMap to cache its entry count outside the kv table's
// key space, so there is no risk of a length-cache key colliding with a
// user-supplied key.
func (e *Engine) CounterValue(ctx context.Context, name string) (uint64, bool, error) {
	var value uint64

	row := e.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name)

	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("%w: read counter %q: %v", ErrStorage, name, err)
	}

	return value, true, nil
}

// SetCounter stores an explicit value for a named counter, creating or
// overwriting it.
func (e *Engine) SetCounter(ctx context.Context, name string, value uint64) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("%w: set counter %q: %v", ErrStorage, name, err)
	}

	return nil
}

// prefixUpperBound returns the smallest byte string that is strictly
// greater than every string beginning with prefix, or nil if prefix is
// all 0xFF bytes (meaning "no upper bound").
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++

			return upper[:i+1]
		}
	}

	return nil
}
