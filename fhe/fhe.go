// Package fhe defines the capability interface between the poll registry and
// an encrypted-arithmetic backend. The registry manipulates encrypted values
// exclusively through opaque handles; ciphertext contents, key material and
// the decryption boundary are owned by the Scheme implementation.
package fhe

import (
	"fmt"

	"github.com/sealedvote/sealedvote-node/types"
)

// HandleLength is the byte length of a ciphertext handle.
const HandleLength = 32

// Handle is an opaque identifier for an encrypted value held by a Scheme.
// It is derived from the ciphertext content, so equal handles reference
// equal ciphertexts, but the handle itself reveals nothing about the
// plaintext.
type Handle = types.HexBytes

// Errors returned by Scheme implementations.
var (
	// ErrUnknownHandle is returned when a handle does not reference any
	// ciphertext known to the scheme.
	ErrUnknownHandle = fmt.Errorf("unknown ciphertext handle")
	// ErrNotDecryptable is returned when a ciphertext is requested for
	// decryption but has not been marked publicly decryptable.
	ErrNotDecryptable = fmt.Errorf("handle not marked publicly decryptable")
	// ErrInvalidAttestation is returned when a results attestation does not
	// match the given handles and cleartexts or carries a bad signature.
	ErrInvalidAttestation = fmt.Errorf("invalid results attestation")
	// ErrInvalidCiphertext is returned when externally submitted ciphertext
	// bytes cannot be decoded into a valid encrypted value.
	ErrInvalidCiphertext = fmt.Errorf("invalid external ciphertext")
)

// Scheme is the encrypted-arithmetic capability consumed by the registry.
// All operations work on handles; implementations must never expose
// plaintexts through this interface.
//
// Implementations must be safe for concurrent use.
type Scheme interface {
	// EncryptConstant encrypts the public constant v and returns a handle
	// to the fresh ciphertext.
	EncryptConstant(v uint64) (Handle, error)

	// Add returns a handle to the encryption of the sum of the values
	// referenced by a and b.
	Add(a, b Handle) (Handle, error)

	// Equals returns a handle to an encrypted boolean: 1 if the values
	// referenced by a and b are equal, 0 otherwise.
	Equals(a, b Handle) (Handle, error)

	// Select returns a handle to the value referenced by a if cond
	// references an encrypted 1, or to the value referenced by b
	// otherwise. The returned ciphertext is re-randomized, so the result
	// does not reveal which branch was taken.
	Select(cond, a, b Handle) (Handle, error)

	// MarkPubliclyDecryptable flags the referenced ciphertext as
	// releasable to the decryption authority. Unflagged ciphertexts must
	// never be decrypted outside the capability boundary.
	MarkPubliclyDecryptable(h Handle) error

	// VerifySignedCleartext checks that cleartext values are the authentic
	// decryptions of the referenced ciphertexts, attested by the
	// decryption authority. The proof blob carries the authority's
	// attestation. A nil error means the cleartexts can be trusted.
	VerifySignedCleartext(handles []Handle, cleartext []uint64, proof []byte) error

	// DecodeExternal validates an externally produced ciphertext,
	// registers it with the scheme and returns its handle. The proof blob
	// is backend-defined; backends without external proof support accept
	// it opaquely.
	DecodeExternal(ciphertext, proof []byte) (Handle, error)
}
