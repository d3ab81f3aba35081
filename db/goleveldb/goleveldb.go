// Package goleveldb implements db.Database over syndtr/goleveldb. It is kept
// as an alternative persistent backend for environments where pebble is not
// a good fit (32-bit platforms, constrained memory).
package goleveldb

import (
	"bytes"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	leveldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sealedvote/sealedvote-node/db"
)

// GoLevelDB implements db.Database over a leveldb store. Like the pebble
// backend, operations on a closed database are silent no-ops.
type GoLevelDB struct {
	db     *leveldb.DB
	closed atomic.Bool
}

// Ensure that GoLevelDB implements the db.Database interface.
var _ db.Database = (*GoLevelDB)(nil)

// New opens or creates a leveldb database at opts.Path.
func New(opts db.Options) (*GoLevelDB, error) {
	o := &opt.Options{
		OpenFilesCacheCapacity: 128,
	}
	ldb, err := leveldb.OpenFile(opts.Path, o)
	if err != nil {
		return nil, fmt.Errorf("could not open leveldb: %w", err)
	}
	return &GoLevelDB{db: ldb}, nil
}

func (d *GoLevelDB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, db.ErrKeyNotFound
	}
	value, err := d.db.Get(key, nil)
	if err == leveldberrors.ErrNotFound {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (d *GoLevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	if d.closed.Load() {
		return nil
	}
	var slice *leveldbutil.Range
	if len(prefix) > 0 {
		slice = leveldbutil.BytesPrefix(prefix)
	}
	iter := d.db.NewIterator(slice, nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// WriteTx creates a new write transaction backed by a pending-writes overlay,
// committed through a leveldb batch. Conflicts are not detected.
func (d *GoLevelDB) WriteTx() db.WriteTx {
	return &WriteTx{
		parent: d,
		writes: make(map[string]*[]byte),
	}
}

func (d *GoLevelDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}

// Compact performs a full range compaction of the store.
func (d *GoLevelDB) Compact() error {
	if d.closed.Load() {
		return nil
	}
	return d.db.CompactRange(leveldbutil.Range{})
}

// WriteTx implements db.WriteTx. A nil overlay entry marks a pending delete.
type WriteTx struct {
	parent *GoLevelDB
	writes map[string]*[]byte
	done   bool
}

// Ensure that WriteTx implements the db.WriteTx interface.
var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if pending, ok := tx.writes[string(key)]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	return tx.parent.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries := make(map[string][]byte)
	err := tx.parent.Iterate(prefix, func(key, value []byte) bool {
		entries[string(key)] = bytes.Clone(value)
		return true
	})
	if err != nil {
		return err
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}

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

func (tx *WriteTx) Set(key, value []byte) error {
	if tx.done {
		return nil
	}
	valCopy := bytes.Clone(value)
	tx.writes[string(key)] = &valCopy
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	if tx.done {
		return nil
	}
	tx.writes[string(key)] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	if o, ok := other.(*WriteTx); ok {
		for key, value := range o.writes {
			if value == nil {
				if err := tx.Delete([]byte(key)); err != nil {
					return err
				}
				continue
			}
			if err := tx.Set([]byte(key), *value); err != nil {
				return err
			}
		}
		return nil
	}
	return other.Iterate(nil, func(k, v []byte) bool {
		return tx.Set(k, v) == nil
	})
}

func (tx *WriteTx) Commit() error {
	if tx.parent.closed.Load() {
		return nil
	}
	if tx.done {
		return fmt.Errorf("cannot commit leveldb tx: already committed or discarded")
	}
	batch := new(leveldb.Batch)
	for key, value := range tx.writes {
		if value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), *value)
	}
	if err := tx.parent.db.Write(batch, nil); err != nil {
		return err
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = make(map[string]*[]byte)
	tx.done = true
}
