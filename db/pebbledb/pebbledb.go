// Package pebbledb implements db.Database over cockroachdb/pebble. It is the
// default persistent backend.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/sealedvote/sealedvote-node/db"
)

// PebbleDB implements db.Database over a pebble store. Operations on a closed
// database are silent no-ops rather than panics, so shutdown ordering between
// subsystems sharing the database is not critical.
type PebbleDB struct {
	db     *pebble.DB
	closed atomic.Bool
}

// Ensure that PebbleDB implements the db.Database interface.
var _ db.Database = (*PebbleDB)(nil)

// New opens or creates a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, err
	}
	o := &pebble.Options{
		MaxOpenFiles: 1024,
	}
	pdb, err := pebble.Open(opts.Path, o)
	if err != nil {
		return nil, fmt.Errorf("could not open pebble db: %w", err)
	}
	return &PebbleDB{db: pdb}, nil
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, db.ErrKeyNotFound
	}
	value, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	if d.closed.Load() {
		return nil
	}
	iter, err := d.db.NewIter(iterOptions(prefix))
	if err != nil {
		return err
	}
	defer func() {
		_ = iter.Close()
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// WriteTx creates a new write transaction. Reads go through a local overlay
// first, so pending writes are visible to the transaction itself. Pebble
// batches do not detect conflicts, so Commit never returns db.ErrConflict.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{
		parent: d,
		writes: make(map[string]*[]byte),
	}
}

func (d *PebbleDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}

// Compact performs a full range compaction of the store.
func (d *PebbleDB) Compact() error {
	if d.closed.Load() {
		return nil
	}
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = bytes.Clone(iter.Key())
	}
	if iter.Last() {
		last = bytes.Clone(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil || bytes.Equal(first, last) {
		return nil
	}
	return d.db.Compact(first, last, true)
}

// WriteTx implements db.WriteTx as a pending-writes overlay committed through
// a pebble batch. A nil overlay entry marks a pending delete.
type WriteTx struct {
	parent *PebbleDB
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
		return fmt.Errorf("cannot commit pebble tx: already committed or discarded")
	}
	batch := tx.parent.db.NewBatch()
	for key, value := range tx.writes {
		if value == nil {
			if err := batch.Delete([]byte(key), nil); err != nil {
				return err
			}
			continue
		}
		if err := batch.Set([]byte(key), *value, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = make(map[string]*[]byte)
	tx.done = true
}

// iterOptions bounds an iterator to the keys starting with prefix.
func iterOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return &pebble.IterOptions{}
	}
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists.
func keyUpperBound(b []byte) []byte {
	end := bytes.Clone(b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
