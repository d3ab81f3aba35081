// Package poseidon wraps the iden3 Poseidon hash for inputs of any length.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// chunkSize is the maximum arity of a single Poseidon permutation.
const chunkSize = 16

// MultiPoseidon hashes any number of field elements. Up to chunkSize inputs
// hash in one permutation; longer input sets are hashed chunk by chunk and
// the chunk digests folded recursively until one digest remains. The
// decryption proofs hash challenge transcripts through it.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) <= chunkSize {
		return poseidon.Hash(inputs)
	}

	hashes := make([]*big.Int, 0, (len(inputs)+chunkSize-1)/chunkSize)
	for i := 0; i < len(inputs); i += chunkSize {
		hash, err := poseidon.Hash(inputs[i:min(i+chunkSize, len(inputs))])
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return MultiPoseidon(hashes...)
}
