package storage

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/types"
)

// metadataURIScheme prefixes the canonical URI form of a metadata reference.
const metadataURIScheme = "ipfs://"

// MetadataHash computes the content address of a metadata document: a CIDv1
// with raw codec over the sha2-256 of its canonical JSON encoding. Returns
// nil if the metadata cannot be encoded.
func MetadataHash(metadata *types.Metadata) []byte {
	data, err := EncodeArtifactJSON(metadata)
	if err != nil {
		return nil
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return nil
	}
	return cid.NewCidV1(cid.Raw, mh).Bytes()
}

// MetadataURI renders a metadata content hash in its canonical URI form
// (ipfs://<cid>).
func MetadataURI(hash []byte) (string, error) {
	c, err := cid.Cast(hash)
	if err != nil {
		return "", fmt.Errorf("invalid metadata hash: %w", err)
	}
	return metadataURIScheme + c.String(), nil
}

// MetadataHashFromURI parses a metadata URI (ipfs://<cid> or a bare cid
// string) back into the content hash used as storage key.
func MetadataHashFromURI(uri string) ([]byte, error) {
	c, err := cid.Decode(strings.TrimPrefix(uri, metadataURIScheme))
	if err != nil {
		return nil, fmt.Errorf("invalid metadata URI %q: %w", uri, err)
	}
	return c.Bytes(), nil
}

// SetMetadata stores the metadata into the storage, keyed by its content
// hash, and returns the hash.
func (s *Storage) SetMetadata(metadata *types.Metadata) ([]byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if metadata == nil {
		return nil, fmt.Errorf("nil metadata")
	}

	// Calculate the hash of the metadata
	hash := MetadataHash(metadata)
	if hash == nil {
		return nil, fmt.Errorf("could not hash metadata")
	}

	// Store the metadata with its hash as the key
	return hash, s.setArtifact(metadataPrefix, hash, metadata, ArtifactEncodingJSON)
}

// Metadata retrieves the metadata from the storage using its content hash.
func (s *Storage) Metadata(hash []byte) (*types.Metadata, error) {
	if hash == nil {
		return nil, fmt.Errorf("nil metadata hash")
	}
	// Try to get the metadata from the cache
	val, ok := s.cache.Get(string(metadataPrefix) + string(hash))
	if ok {
		if metadata, ok := val.(*types.Metadata); ok {
			return metadata, nil
		}
		log.Warnw("cache hit but type assertion failed", "expected", "*types.Metadata", "got", fmt.Sprintf("%T", val))
	}

	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	// Retrieve the metadata from the storage
	metadata := &types.Metadata{}
	if err := s.getArtifact(metadataPrefix, hash, metadata, ArtifactEncodingJSON); err != nil {
		return nil, err
	}

	// Store the metadata in the cache for future use
	s.cache.Add(string(metadataPrefix)+string(hash), metadata)

	return metadata, nil
}
