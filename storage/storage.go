/*
Package storage provides the persistent storage layer for the sealedvote node.

# Storage Organization

The storage uses a key-value database with prefixed namespaces to organize
different types of data:

## Polls
  - p/ : pollID → Poll (name, options, voting window, tally handles, flags)
  - m/ : poll bookkeeping ("nextPollID" → next dense identifier)

## Participation
  - v/ : pollID + voterAddress → voted marker (authoritative double-vote guard)

## Results
  - at/ : pollID → ResultsAttestation (authority-signed clear results)

## Metadata
  - md/ : contentHash → Metadata document (titles, descriptions, choices)

## Separate Databases
  - fh_ : prefix for the confidential tally scheme database (ciphertexts,
    decryptability markers, scheme key)

Participation receipt trees are not kept here; they live in per-poll pebble
directories managed by the participation package.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
	"github.com/sealedvote/sealedvote-node/log"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	pollPrefix        = []byte("p/")
	pollMetaPrefix    = []byte("m/")
	votedPrefix       = []byte("v/")
	attestationPrefix = []byte("at/")
	metadataPrefix    = []byte("md/")
	fheDBprefix       = []byte("fh_")

	// nextPollIDKey is the poll bookkeeping key holding the next identifier.
	nextPollIDKey = []byte("nextPollID")
)

// Storage manages polls, voted markers, attestations and metadata documents.
type Storage struct {
	db         db.Database
	fheDB      db.Database
	globalLock sync.Mutex              // Lock for global operations
	cache      *lru.Cache[string, any] // Cache for artifacts
}

// New creates a new Storage instance.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, any](1000)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    database,
		fheDB: prefixeddb.NewPrefixedDatabase(database, fheDBprefix),
		cache: cache,
	}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}

// FHEDatabase returns the database namespace reserved for the confidential
// tally scheme.
func (s *Storage) FHEDatabase() db.Database {
	return s.fheDB
}

// setArtifact encodes and stores an artifact under the given prefix and key.
// CBOR is used unless another encoding is given.
func (s *Storage) setArtifact(prefix []byte, key []byte, artifact any, encoding ...ArtifactEncoding) error {
	data, err := EncodeArtifact(artifact, encoding...)
	if err != nil {
		return err
	}

	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()

	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact loads and decodes the artifact at prefix+key into out,
// returning ErrNotFound when the key does not exist.
func (s *Storage) getArtifact(prefix []byte, key []byte, out any, encoding ...ArtifactEncoding) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		return ErrNotFound
	}
	if err := DecodeArtifact(data, out, encoding...); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// listArtifacts returns every key stored under the given prefix. Keys are
// copied out of the iterator since backends may reuse the buffer.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte{}, k...))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
