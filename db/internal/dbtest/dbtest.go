// Package dbtest holds the db.Database test suite shared by all backends.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/db"
)

// TestWriteTx exercises the basic transaction contract: reads of missing
// keys, read-your-writes, commit visibility, deletes and discard.
func TestWriteTx(t *testing.T, database db.Database) {
	wTx := database.WriteTx()

	if _, err := wTx.Get([]byte("a")); err != db.ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	err := wTx.Set([]byte("a"), []byte("b"))
	qt.Assert(t, err, qt.IsNil)

	v, err := wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	err = wTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	// Discard after Commit is a no-op, so deferring both is fine.
	wTx.Discard()

	// The committed value must be visible from the database and from new
	// transactions.
	v, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	wTx = database.WriteTx()
	defer wTx.Discard()

	v, err = wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	err = wTx.Set([]byte("a"), []byte("z"))
	qt.Assert(t, err, qt.IsNil)
	err = wTx.Delete([]byte("a"))
	qt.Assert(t, err, qt.IsNil)

	if _, err := wTx.Get([]byte("a")); err != db.ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}

	err = wTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	if _, err := database.Get([]byte("a")); err != db.ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound after committed delete, got %v", err)
	}

	// A discarded transaction leaves no trace.
	wTx = database.WriteTx()
	err = wTx.Set([]byte("discarded"), []byte("x"))
	qt.Assert(t, err, qt.IsNil)
	wTx.Discard()

	if _, err := database.Get([]byte("discarded")); err != db.ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound for discarded write, got %v", err)
	}
}

// TestIterate exercises prefixed iteration at the database level: ordering,
// prefix filtering and early stop.
func TestIterate(t *testing.T, database db.Database) {
	wTx := database.WriteTx()
	defer wTx.Discard()
	for i := range 10 {
		err := wTx.Set(fmt.Appendf(nil, "key/%d", i), fmt.Appendf(nil, "value%d", i))
		qt.Assert(t, err, qt.IsNil)
	}
	err := wTx.Set([]byte("other/0"), []byte("x"))
	qt.Assert(t, err, qt.IsNil)
	err = wTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	var keys []string
	err = database.Iterate([]byte("key/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, len(keys), qt.Equals, 10)
	// keys arrive in lexicographic order and include the prefix
	for i, k := range keys {
		qt.Assert(t, k, qt.Equals, fmt.Sprintf("key/%d", i))
	}

	// early stop after the first callback
	count := 0
	err = database.Iterate([]byte("key/"), func(k, v []byte) bool {
		count++
		return false
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, count, qt.Equals, 1)

	// nil prefix iterates everything
	count = 0
	err = database.Iterate(nil, func(k, v []byte) bool {
		count++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, count, qt.Equals, 11)
}

// TestWriteTxApply exercises copying pending writes between two transactions
// of the same database.
func TestWriteTxApply(t *testing.T, database db.Database) {
	wTx1 := database.WriteTx()
	defer wTx1.Discard()
	err := wTx1.Set([]byte("applied"), []byte("value"))
	qt.Assert(t, err, qt.IsNil)

	wTx2 := database.WriteTx()
	defer wTx2.Discard()
	err = wTx2.Apply(wTx1)
	qt.Assert(t, err, qt.IsNil)

	v, err := wTx2.Get([]byte("applied"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("value"))

	err = wTx2.Commit()
	qt.Assert(t, err, qt.IsNil)

	v, err = database.Get([]byte("applied"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("value"))
}

// TestWriteTxApplyPrefixed exercises applying a plain transaction into a
// prefixed one and the other way around, checking the writes land under the
// expected physical keys.
func TestWriteTxApplyPrefixed(t *testing.T, database, dbWithPrefix db.Database) {
	// plain writes applied into a prefixed tx stay under the prefix
	plainTx := dbWithPrefix.WriteTx()
	defer plainTx.Discard()
	err := plainTx.Set([]byte("inner"), []byte("1"))
	qt.Assert(t, err, qt.IsNil)
	err = plainTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	v, err := dbWithPrefix.Get([]byte("inner"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("1"))

	// the same key must not be visible as an unprefixed key
	if _, err := database.Get([]byte("inner")); err != db.ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound for unprefixed key, got %v", err)
	}

	// applying a prefixed tx into another prefixed tx keeps the writes
	// addressed to the same keys
	srcTx := dbWithPrefix.WriteTx()
	defer srcTx.Discard()
	err = srcTx.Set([]byte("copied"), []byte("2"))
	qt.Assert(t, err, qt.IsNil)

	dstTx := dbWithPrefix.WriteTx()
	defer dstTx.Discard()
	err = dstTx.Apply(srcTx)
	qt.Assert(t, err, qt.IsNil)
	err = dstTx.Commit()
	qt.Assert(t, err, qt.IsNil)

	v, err = dbWithPrefix.Get([]byte("copied"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("2"))
}

// TestConcurrentWriteTx exercises conflict detection between two overlapping
// transactions. Only backends with versioned reads pass it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	wTx1 := database.WriteTx()
	defer wTx1.Discard()
	wTx2 := database.WriteTx()
	defer wTx2.Discard()

	_, err := wTx1.Get([]byte("contended"))
	qt.Assert(t, err, qt.Equals, db.ErrKeyNotFound)
	_, err = wTx2.Get([]byte("contended"))
	qt.Assert(t, err, qt.Equals, db.ErrKeyNotFound)

	err = wTx1.Set([]byte("contended"), []byte("one"))
	qt.Assert(t, err, qt.IsNil)
	err = wTx2.Set([]byte("contended"), []byte("two"))
	qt.Assert(t, err, qt.IsNil)

	err = wTx1.Commit()
	qt.Assert(t, err, qt.IsNil)

	err = wTx2.Commit()
	qt.Assert(t, err, qt.Equals, db.ErrConflict)
}
