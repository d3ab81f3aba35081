package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	gecdsa "github.com/consensys/gnark-crypto/ecc/secp256k1/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer is an ECDSA private key used to sign Ethereum personal messages:
// vote envelopes on the voter side, results attestations on the authority
// side. Messages are hashed with the Ethereum Signed Message prefix before
// signing, so signatures recover with the same conventions wallets use.
type Signer ecdsa.PrivateKey

// NewSigner generates a fresh random signing key.
func NewSigner() (*Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(key), nil
}

// NewSignerFromHex builds a Signer from a hex-encoded private key scalar.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("could not decode key: %w", err)
	}
	return (*Signer)(key), nil
}

// NewSignerFromSeed derives a Signer deterministically from arbitrary seed
// bytes. The seed is hashed to obtain a scalar of the right size.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	key, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return nil, fmt.Errorf("could not derive key: %w", err)
	}
	return (*Signer)(key), nil
}

// Address returns the Ethereum address derived from the signer public key.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// Sign hashes the message with the Ethereum prefix and signs the digest.
func (s *Signer) Sign(msg []byte) (*ECDSASignature, error) {
	raw, err := ethcrypto.Sign(HashMessage(msg), (*ecdsa.PrivateKey)(s))
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	var sig gecdsa.Signature
	if _, err := sig.SetBytes(raw[:64]); err != nil {
		return nil, fmt.Errorf("could not decode signature: %w", err)
	}
	return &ECDSASignature{
		R:        new(big.Int).SetBytes(sig.R[:]),
		S:        new(big.Int).SetBytes(sig.S[:]),
		recovery: raw[64],
	}, nil
}

// HashMessage hashes data prefixed with the Ethereum Signed Message header.
func HashMessage(data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%d%s", SigningPrefix, len(data), data)
	return HashRaw(buf.Bytes())
}

// HashRaw is a plain keccak256 with no prefix.
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
