// Package metadb instantiates the configured db.Database backend.
package metadb

import (
	"fmt"
	"testing"

	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/goleveldb"
	"github.com/sealedvote/sealedvote-node/db/inmemory"
	"github.com/sealedvote/sealedvote-node/db/mongodb"
	"github.com/sealedvote/sealedvote-node/db/pebbledb"
)

// New returns a db.Database of the given type stored at dir.
func New(typ, dir string) (db.Database, error) {
	var (
		database db.Database
		err      error
	)
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		database, err = pebbledb.New(opts)
	case db.TypeLevelDB:
		database, err = goleveldb.New(opts)
	case db.TypeMongo:
		database, err = mongodb.New(opts)
	case db.TypeInMemory:
		database, err = inmemory.New(opts)
	default:
		return nil, fmt.Errorf("invalid database type: %q", typ)
	}
	if err != nil {
		return nil, err
	}
	return database, nil
}

// NewTest returns a pebble database in a test temporary directory, closed
// automatically when the test finishes.
func NewTest(tb testing.TB) db.Database {
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}
