// Package prefixeddb wraps a db.Database so all keys live under a fixed
// prefix. It lets independent subsystems share one physical database without
// key collisions.
package prefixeddb

import (
	"github.com/sealedvote/sealedvote-node/db"
)

// PrefixedDatabase wraps a db.Database prepending a prefix to all keys.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

// NewPrefixedDatabase returns a PrefixedDatabase over the given database and
// prefix.
func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{
		db:     database,
		prefix: prefix,
	}
}

// Get retrieves the value for the key, under the database prefix.
func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(composeKey(d.prefix, key))
}

// Iterate calls callback with all key-value pairs whose key starts with the
// given prefix. The database prefix is stripped from the keys passed to the
// callback.
func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return d.db.Iterate(composeKey(d.prefix, prefix), func(key, value []byte) bool {
		return callback(key[len(d.prefix):], value)
	})
}

// WriteTx creates a new write transaction scoped to the database prefix.
func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// Close closes the underlying database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}

// Compact triggers a compaction of the underlying database.
func (d *PrefixedDatabase) Compact() error {
	return d.db.Compact()
}

// PrefixedWriteTx wraps a db.WriteTx prepending a prefix to all keys.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

// NewPrefixedWriteTx returns a PrefixedWriteTx over the given transaction and
// prefix.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{
		tx:     tx,
		prefix: prefix,
	}
}

// Get retrieves the value for the key, under the transaction prefix.
func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(composeKey(t.prefix, key))
}

// Iterate calls callback with all key-value pairs of the transaction whose key
// starts with the given prefix. The transaction prefix is stripped from the
// keys passed to the callback.
func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return t.tx.Iterate(composeKey(t.prefix, prefix), func(key, value []byte) bool {
		return callback(key[len(t.prefix):], value)
	})
}

// Set stores the value under the key, under the transaction prefix.
func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(composeKey(t.prefix, key), value)
}

// Delete removes the key, under the transaction prefix.
func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(composeKey(t.prefix, key))
}

// Apply copies the pending writes of the other transaction into this one. If
// the other transaction is also prefixed, the underlying transactions are
// applied directly so the writes keep their original prefix.
func (t *PrefixedWriteTx) Apply(other db.WriteTx) error {
	if o, ok := other.(*PrefixedWriteTx); ok {
		return t.tx.Apply(o.tx)
	}
	return t.tx.Apply(other)
}

// Commit applies all pending writes of the transaction.
func (t *PrefixedWriteTx) Commit() error {
	return t.tx.Commit()
}

// Discard drops all pending writes of the transaction.
func (t *PrefixedWriteTx) Discard() {
	t.tx.Discard()
}

// PrefixedReader wraps a db.Reader prepending a prefix to all keys.
type PrefixedReader struct {
	db     db.Reader
	prefix []byte
}

// NewPrefixedReader returns a PrefixedReader over the given reader and prefix.
func NewPrefixedReader(database db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{
		db:     database,
		prefix: prefix,
	}
}

// Get retrieves the value for the key, under the reader prefix.
func (r *PrefixedReader) Get(key []byte) ([]byte, error) {
	return r.db.Get(composeKey(r.prefix, key))
}

// Iterate calls callback with all key-value pairs whose key starts with the
// given prefix. The reader prefix is stripped from the keys passed to the
// callback.
func (r *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return r.db.Iterate(composeKey(r.prefix, prefix), func(key, value []byte) bool {
		return callback(key[len(r.prefix):], value)
	})
}

// composeKey builds a fresh slice to avoid aliasing the prefix backing array.
func composeKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}
