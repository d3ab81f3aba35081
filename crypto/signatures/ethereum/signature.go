// Package ethereum implements ECDSA signing and recovery with Ethereum
// personal-message semantics. Voter identities are the addresses recovered
// from vote envelope signatures, so the conventions here must match what
// standard wallets produce.
package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the byte size of a serialized signature: R, S and
	// the recovery byte.
	SignatureLength = ethcrypto.SignatureLength
	// SigningPrefix is prepended to messages before hashing, per the
	// Ethereum personal-message convention.
	SigningPrefix = "Ethereum Signed Message:\n"
)

// ECDSASignature holds the R and S components of a secp256k1 signature plus
// the recovery byte needed to recover the signer public key.
type ECDSASignature struct {
	R        *big.Int `json:"r"`
	S        *big.Int `json:"s"`
	recovery byte     `json:"-"`
}

// BytesToSignature parses a serialized signature. At least 64 bytes (R‖S)
// are required; the 65th byte, when present, is the recovery value in either
// raw (0-3) or Ethereum (27+) form.
func BytesToSignature(signature []byte) (*ECDSASignature, error) {
	if len(signature) < SignatureLength-1 {
		return nil, fmt.Errorf("signature length is less than %d", SignatureLength-1)
	}
	sig := new(ECDSASignature).SetBytes(signature)
	if sig == nil {
		return nil, fmt.Errorf("wrong signature bytes")
	}
	return sig, nil
}

// Valid reports whether both components are present.
func (sig *ECDSASignature) Valid() bool {
	return sig.R != nil && sig.S != nil
}

// SetBytes parses R, S and the optional recovery byte from the serialized
// form. Returns nil on a malformed input.
func (sig *ECDSASignature) SetBytes(signature []byte) *ECDSASignature {
	if len(signature) < SignatureLength-1 {
		return nil
	}
	sig.R = new(big.Int).SetBytes(signature[:32])
	sig.S = new(big.Int).SetBytes(signature[32:64])
	sig.recovery = 0
	if len(signature) == SignatureLength {
		v := signature[64]
		// normalize Ethereum's 27+ recovery values to 0-3
		if v >= 27 {
			v -= 27
		}
		if v > 3 {
			return nil
		}
		sig.recovery = v
	}
	return sig
}

// Bytes serializes the signature as R‖S‖V with both components left-padded
// to 32 bytes, the layout ethcrypto.SigToPub expects.
func (sig *ECDSASignature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	v := sig.recovery
	if v > 1 {
		v -= 27
	}
	out[64] = v
	return out
}

// Verify checks that the signature over signedInput was produced by the key
// behind expectedAddress, and returns the recovered public key.
func (sig *ECDSASignature) Verify(signedInput []byte, expectedAddress common.Address) (bool, []byte) {
	if !sig.Valid() {
		return false, nil
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(signedInput), sig.Bytes())
	if err != nil {
		return false, nil
	}
	return ethcrypto.PubkeyToAddress(*pubKey) == expectedAddress, ethcrypto.FromECDSAPub(pubKey)
}

// String renders the signature components for logs.
func (sig *ECDSASignature) String() string {
	return fmt.Sprintf("R: %s, S: %s, Recovery: %d", sig.R.String(), sig.S.String(), sig.recovery)
}

// AddrFromSignature recovers the address that signed the message.
func AddrFromSignature(message []byte, signature *ECDSASignature) (common.Address, error) {
	if signature == nil || !signature.Valid() {
		return common.Address{}, fmt.Errorf("signature is nil")
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), signature.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
