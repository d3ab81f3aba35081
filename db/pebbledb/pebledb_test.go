package pebbledb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/internal/dbtest"
	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
)

func openTestDB(t *testing.T) db.Database {
	t.Helper()
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, openTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, openTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, openTestDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := openTestDB(t)
	prefixed := prefixeddb.NewPrefixedDatabase(database, []byte("one"))
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixed)
}

// The shared TestConcurrentWriteTx suite is deliberately not run here:
// pebble.Batch is a write batch, not a transaction. It neither detects
// conflicting commits nor isolates reads from writes made after the batch
// was opened, so the conflict assertions cannot hold on this backend.
// Callers that need conflict detection must retry at the storage layer.

func TestClosedDB(t *testing.T) {
	c := qt.New(t)

	database, err := New(db.Options{Path: t.TempDir()})
	c.Assert(err, qt.IsNil)

	key := []byte("key")
	wTx := database.WriteTx()
	otherTx := database.WriteTx()
	c.Assert(wTx.Set(key, []byte("value")), qt.IsNil)

	c.Assert(database.Close(), qt.IsNil)

	// pebble keeps open batches usable after the database is closed, so
	// every operation below must still return without error or panic.
	_, err = wTx.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(wTx.Set(key, []byte("new_value")), qt.IsNil)
	c.Assert(wTx.Delete(key), qt.IsNil)

	err = wTx.Iterate([]byte("prefix"), func(k, v []byte) bool {
		c.Fatalf("iterate callback invoked on a closed database")
		return true
	})
	c.Assert(err, qt.IsNil)

	c.Assert(wTx.Apply(otherTx), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	// closing twice and opening a new batch must not panic either
	c.Assert(database.Close(), qt.IsNil)
	_ = database.WriteTx()
}
