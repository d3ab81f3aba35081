package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactEncoding selects the serialization format for stored artifacts.
type ArtifactEncoding int

const (
	// ArtifactEncodingCBOR is the default format for persisted artifacts.
	ArtifactEncodingCBOR ArtifactEncoding = iota
	// ArtifactEncodingJSON is used for artifacts that double as
	// content-addressed documents, where the canonical form is JSON.
	ArtifactEncodingJSON
)

// cborEncMode returns the deterministic CBOR encoder. Determinism matters:
// the same artifact must always serialize to the same bytes so content
// addresses and stored values stay stable.
var cborEncMode = sync.OnceValues(func() (cbor.EncMode, error) {
	return cbor.CoreDetEncOptions().EncMode()
})

// EncodeArtifact encodes an artifact, defaulting to CBOR when no encoding is
// given.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	enc := ArtifactEncodingCBOR
	if len(encoding) > 0 {
		enc = encoding[0]
	}
	switch enc {
	case ArtifactEncodingCBOR:
		return EncodeArtifactCBOR(a)
	case ArtifactEncodingJSON:
		return EncodeArtifactJSON(a)
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %d", enc)
	}
}

// DecodeArtifact decodes an artifact, defaulting to CBOR when no encoding is
// given.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	enc := ArtifactEncodingCBOR
	if len(encoding) > 0 {
		enc = encoding[0]
	}
	switch enc {
	case ArtifactEncodingCBOR:
		return DecodeArtifactCBOR(data, out)
	case ArtifactEncodingJSON:
		return DecodeArtifactJSON(data, out)
	default:
		return fmt.Errorf("unknown artifact encoding: %d", enc)
	}
}

// EncodeArtifactCBOR encodes an artifact with the deterministic CBOR mode.
func EncodeArtifactCBOR(a any) ([]byte, error) {
	em, err := cborEncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

// DecodeArtifactCBOR decodes a CBOR-encoded artifact into out.
func DecodeArtifactCBOR(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// EncodeArtifactJSON encodes an artifact as JSON.
func EncodeArtifactJSON(a any) ([]byte, error) {
	return json.Marshal(a)
}

// DecodeArtifactJSON decodes a JSON-encoded artifact into out.
func DecodeArtifactJSON(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
