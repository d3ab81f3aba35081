// Package inmemory implements db.Database backed by process memory, for
// tests and throwaway nodes. Transactions use optimistic concurrency: every
// key carries a version, a transaction remembers the versions it read, and
// Commit fails with db.ErrConflict when any of them changed underneath.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/sealedvote/sealedvote-node/db"
)

// InMemoryDB implements an ephemeral in-memory db.Database.
type InMemoryDB struct {
	mu sync.RWMutex
	// values holds live entries only; versions also remembers tombstones so
	// a delete still invalidates concurrent readers of the key.
	values      map[string][]byte
	versions    map[string]uint64
	nextVersion uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{
		values:   make(map[string][]byte),
		versions: make(map[string]uint64),
	}, nil
}

func (d *InMemoryDB) Close() error {
	return nil
}

func (d *InMemoryDB) Compact() error {
	return nil
}

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	value, ok := d.values[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	snapshot := d.snapshot(prefix, nil)
	d.mu.RUnlock()
	return iterateSorted(snapshot, callback)
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	d.mu.RLock()
	baseVer := d.nextVersion
	d.mu.RUnlock()
	return &WriteTx{
		db:      d,
		pending: make(map[string]*[]byte),
		reads:   make(map[string]uint64),
		baseVer: baseVer,
	}
}

// snapshot copies the live entries under prefix. If readVersions is not nil
// it also records the version of every copied key. Callers hold d.mu.
func (d *InMemoryDB) snapshot(prefix []byte, readVersions map[string]uint64) map[string][]byte {
	out := make(map[string][]byte)
	for k, v := range d.values {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		out[k] = bytes.Clone(v)
		if readVersions != nil {
			readVersions[k] = d.versions[k]
		}
	}
	return out
}

// write stores or tombstones a key, bumping its version. Callers hold d.mu.
func (d *InMemoryDB) write(key string, value []byte, deleteKey bool) {
	d.nextVersion++
	d.versions[key] = d.nextVersion
	if deleteKey {
		delete(d.values, key)
		return
	}
	d.values[key] = bytes.Clone(value)
}

// WriteTx buffers writes until Commit. A nil pending value is a deletion.
type WriteTx struct {
	db        *InMemoryDB
	pending   map[string]*[]byte
	reads     map[string]uint64
	baseVer   uint64
	committed bool
	discarded bool
}

var _ db.WriteTx = (*WriteTx)(nil)

// trackRead records the current version of the key, keeping the earliest
// observation so later accesses cannot mask a concurrent change.
func (tx *WriteTx) trackRead(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.versions[key]
	tx.db.mu.RUnlock()
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	strKey := string(key)
	if pending, ok := tx.pending[strKey]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.trackRead(strKey)

	tx.db.mu.RLock()
	value, ok := tx.db.values[strKey]
	tx.db.mu.RUnlock()
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	readVersions := make(map[string]uint64)
	tx.db.mu.RLock()
	entries := tx.db.snapshot(prefix, readVersions)
	tx.db.mu.RUnlock()

	for k, ver := range readVersions {
		if _, ok := tx.reads[k]; !ok {
			tx.reads[k] = ver
		}
	}

	// overlay the transaction's own pending writes
	for k, v := range tx.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	return iterateSorted(entries, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	strKey := string(key)
	tx.trackRead(strKey)
	valCopy := bytes.Clone(value)
	tx.pending[strKey] = &valCopy
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	strKey := string(key)
	tx.trackRead(strKey)
	tx.pending[strKey] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	return other.Iterate(nil, func(k, v []byte) bool {
		return tx.Set(k, v) == nil
	})
}

func (tx *WriteTx) Commit() error {
	if tx.committed || tx.discarded {
		return fmt.Errorf("cannot commit inmemory tx: already committed or discarded")
	}

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	for key, readVersion := range tx.reads {
		if readVersion > tx.baseVer || tx.db.versions[key] != readVersion {
			return db.ErrConflict
		}
	}
	for key, value := range tx.pending {
		if value == nil {
			tx.db.write(key, nil, true)
			continue
		}
		tx.db.write(key, *value, false)
	}
	tx.committed = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.pending = map[string]*[]byte{}
	tx.reads = map[string]uint64{}
	tx.discarded = true
}

func iterateSorted(entries map[string][]byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if !callback([]byte(key), entries[key]) {
			break
		}
	}
	return nil
}
