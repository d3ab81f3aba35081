// Package db defines the key-value database abstraction used across the node.
// Backends implement Database and WriteTx; callers pick one via metadb.
package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when the transaction conflicts with
	// a concurrently committed one and must be retried.
	ErrConflict = errors.New("transaction conflict")
	// ErrTxnTooBig is returned by Set or Delete when the transaction has
	// grown past what the backend can commit atomically.
	ErrTxnTooBig = errors.New("transaction too big")
)

// Supported database backend identifiers.
const (
	TypePebble   = "pebble"
	TypeLevelDB  = "leveldb"
	TypeMongo    = "mongodb"
	TypeInMemory = "inmemory"
)

// Options defines generic parameters for creating a database.
type Options struct {
	Path string
}

// Database wraps the underlying key-value store. All methods are safe for
// concurrent use.
type Database interface {
	Reader
	// WriteTx creates a new write transaction.
	WriteTx() WriteTx
	// Close closes the database and releases its resources.
	Close() error
	// Compact triggers a backend-specific storage compaction, if supported.
	Compact() error
}

// Reader is the read-only subset of a database or transaction.
type Reader interface {
	// Get retrieves the value for the given key. It returns ErrKeyNotFound
	// if the key does not exist.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback with all key-value pairs whose key starts with
	// prefix, in lexicographic key order. The iteration stops when the
	// callback returns false. The key and value byte slices are only valid
	// during the callback call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a batch of reads and writes applied atomically on Commit.
// Implementations are not required to detect read-write conflicts; those that
// do return ErrConflict from Commit. A WriteTx is not safe for concurrent use
// and must end with exactly one Commit or Discard.
type WriteTx interface {
	Reader
	// Set stores the value under the given key, overwriting any previous
	// value.
	Set(key, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key []byte) error
	// Apply copies all pending writes of the other transaction into this
	// one. Both transactions must come from the same Database.
	Apply(other WriteTx) error
	// Commit atomically applies all pending writes.
	Commit() error
	// Discard drops all pending writes. Calling it after Commit is a no-op,
	// so it is safe to defer.
	Discard()
}
