// Package dict is a thin convenience layer over the storage package,
// exposing save/load semantics that never fail on a missing key.
package dict

import (
	"fmt"
	"log/slog"

	"github.com/roach88/dictdb/internal/storage"
)

// Storage is the capability the pass-through layer needs from its backing
// store. *storage.Store satisfies it.
type Storage interface {
	Get(key string) (any, error)
	Set(key string, value any) error
	Close() error
}

// DB delegates to an owned Storage instance. It adds no behavior beyond
// miss-tolerant loads and a colored debug trace of every executed
// statement.
type DB struct {
	store Storage
}

// Open constructs a DB over a TEXT-keyed namespace with the default expiry
// disabled. Every statement the store executes is logged at Debug level.
func Open(path, namespace string) (*DB, error) {
	st, err := storage.Open(storage.Options{
		Path:      path,
		Namespace: namespace,
		KeyType:   storage.KeyTypeText,
		Trace:     DebugTrace,
	})
	if err != nil {
		return nil, err
	}
	return &DB{store: st}, nil
}

// New wraps an existing Storage. Used by callers that need non-default
// store options.
func New(store Storage) *DB {
	return &DB{store: store}
}

// Save stores value under key.
func (d *DB) Save(key string, value any) error {
	return d.store.Set(key, value)
}

// Load returns the value stored under key, or nil if the key is absent.
// Only genuine storage failures are returned as errors.
func (d *DB) Load(key string) (any, error) {
	v, err := d.store.Get(key)
	if storage.IsKeyNotFound(err) {
		return nil, nil
	}
	return v, err
}

// Close releases the backing store.
func (d *DB) Close() error {
	return d.store.Close()
}

// DebugTrace logs one executed statement with the issuing process and
// worker, in red, matching the wire format external log scrapers expect:
// [pid][worker]: stmt
func DebugTrace(pid int, worker, stmt string) {
	slog.Debug(fmt.Sprintf("\x1b[31m[%d][%s]: %s\x1b[0m", pid, worker, stmt))
}
