// Package mongodb implements db.Database over a MongoDB collection. Keys are
// stored hex-encoded as document ids, which preserves lexicographic order for
// prefix iteration. The backend is mainly useful to share one logical store
// between several nodes; it requires the MONGODB_URL environment variable.
package mongodb

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sealedvote/sealedvote-node/db"
)

const (
	collectionName = "kv"
	opTimeout      = 10 * time.Second
)

type keyValue struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoDB implements db.Database over a MongoDB collection.
type MongoDB struct {
	client *mongo.Client
	col    *mongo.Collection
	closed atomic.Bool
}

// Ensure that MongoDB implements the db.Database interface.
var _ db.Database = (*MongoDB)(nil)

// New connects to the MongoDB server at MONGODB_URL and uses opts.Path as the
// database name.
func New(opts db.Options) (*MongoDB, error) {
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		return nil, fmt.Errorf("MONGODB_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongodb: %w", err)
	}
	// database names cannot contain path separators, which t.TempDir paths do
	name := strings.NewReplacer("/", "_", "\\", "_", ".", "_", " ", "_").Replace(opts.Path)
	return &MongoDB{
		client: client,
		col:    client.Database(name).Collection(collectionName),
	}, nil
}

func (d *MongoDB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, db.ErrKeyNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var doc keyValue
	err := d.col.FindOne(ctx, bson.M{"_id": hex.EncodeToString(key)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func (d *MongoDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	if d.closed.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	filter := bson.M{}
	if len(prefix) > 0 {
		// hex characters need no regex quoting
		filter = bson.M{"_id": bson.M{"$regex": "^" + hex.EncodeToString(prefix)}}
	}
	cursor, err := d.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()
	for cursor.Next(ctx) {
		var doc keyValue
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		key, err := hex.DecodeString(doc.Key)
		if err != nil {
			return fmt.Errorf("malformed key %q in collection: %w", doc.Key, err)
		}
		if !callback(key, doc.Value) {
			break
		}
	}
	return cursor.Err()
}

// WriteTx creates a new write transaction backed by a pending-writes overlay,
// committed as a single ordered bulk write. Conflicts are not detected.
func (d *MongoDB) WriteTx() db.WriteTx {
	return &WriteTx{
		parent: d,
		writes: make(map[string]*[]byte),
	}
}

func (d *MongoDB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Compact is a no-op for MongoDB.
func (d *MongoDB) Compact() error {
	return nil
}

// WriteTx implements db.WriteTx. A nil overlay entry marks a pending delete.
type WriteTx struct {
	parent *MongoDB
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
		return fmt.Errorf("cannot commit mongodb tx: already committed or discarded")
	}
	if len(tx.writes) == 0 {
		tx.done = true
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(tx.writes))
	for key, value := range tx.writes {
		id := hex.EncodeToString([]byte(key))
		if value == nil {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(keyValue{Key: id, Value: *value}).
			SetUpsert(true))
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := tx.parent.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return err
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = make(map[string]*[]byte)
	tx.done = true
}
