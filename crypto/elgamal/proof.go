// Chaum-Pedersen NIZK proof of correct ElGamal decryption.
//
// Proves non-interactively that a plaintext M is the correct decryption of
// ciphertext (C1, C2) under public key P = d·G, without revealing the private
// key d or the encryption nonce k, by proving equality of discrete logs:
//
//	log_G(P) = log_{C1}(C2 - M·G)
//
// The sigma protocol is made non-interactive with the Fiat-Shamir transform,
// hashing all public data with Poseidon to obtain the challenge.
//
// Prover (BuildDecryptionProof):
//  1. Pick r at random.
//  2. A1 = r·G,  A2 = r·C1                (commitment)
//  3. D  = C2 - M·G                       (shared secret)
//  4. e  = H(G,P,C1,D,A1,A2) mod order    (Fiat-Shamir)
//  5. z  = r + e·d mod order              (response)
//
// Proof is (A1,A2,z). The verifier recomputes D and e, then checks
//
//	z·G  == A1 + e·P
//	z·C1 == A2 + e·D

package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"

	"github.com/sealedvote/sealedvote-node/crypto"
	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
	"github.com/sealedvote/sealedvote-node/crypto/hash/poseidon"
)

// SerializedProofSize is the byte length of a serialized DecryptionProof:
// the four affine coordinates of A1 and A2 plus the response Z, each
// big-endian padded to 32 bytes.
const SerializedProofSize = 2*sizePoint + sizeCoord

// DecryptionProof is a non-interactive Chaum-Pedersen proof that C2 - M·G
// and C1 share the same discrete log with respect to P and G.
type DecryptionProof struct {
	A1 ecc.Point // = r·G        (commitment wrt base G)
	A2 ecc.Point // = r·C1       (commitment wrt base C1)
	Z  *big.Int  // = r + e·d    (response)
}

// BuildDecryptionProof creates a Chaum-Pedersen NIZK proving that msg is the
// correct decryption of ciphertext (c1,c2) under privateKey.
func BuildDecryptionProof(
	privateKey *big.Int,
	publicKey ecc.Point,
	c1, c2 ecc.Point,
	msg *big.Int,
) (DecryptionProof, error) {
	order := publicKey.Order()

	// sample fresh randomness r in [1,order-1]
	r, err := rand.Int(rand.Reader, order)
	if err != nil {
		return DecryptionProof{}, fmt.Errorf("failed to sample r: %v", err)
	}
	if r.Sign() == 0 { // reject 0
		r = big.NewInt(1)
	}

	// commitments A1 = r·G,  A2 = r·C1
	A1 := publicKey.New()
	A1.ScalarBaseMult(r)

	A2 := publicKey.New()
	A2.ScalarMult(c1, r)

	// D = C2 - M·G (shared secret part)
	D := sharedSecretPart(publicKey, c2, msg)

	// Fiat-Shamir challenge e = H(G,P,C1,D,A1,A2) mod order
	e := hashPointsToScalar(publicKey, // G is implicit in Point, included for domain separation
		publicKey, // P
		c1,
		D,
		A1,
		A2,
	)

	// response z = r + e·d mod order
	z := new(big.Int).Mul(e, privateKey)
	z.Add(z, r)
	z.Mod(z, order)

	return DecryptionProof{A1: A1, A2: A2, Z: z}, nil
}

// VerifyDecryptionProof checks a Chaum-Pedersen proof of correct decryption.
// Returns nil if the proof is valid.
func VerifyDecryptionProof(
	publicKey ecc.Point,
	c1, c2 ecc.Point,
	msg *big.Int,
	proof DecryptionProof,
) error {
	// recompute D = C2 - M·G and the Fiat-Shamir challenge
	D := sharedSecretPart(publicKey, c2, msg)
	e := hashPointsToScalar(publicKey, // G (domain separation)
		publicKey, // P
		c1,
		D,
		proof.A1,
		proof.A2,
	)

	// check 1:  z·G == A1 + e·P
	left1 := publicKey.New()
	left1.ScalarBaseMult(proof.Z)

	right1 := publicKey.New()
	right1.Set(proof.A1)
	tmp := publicKey.New()
	tmp.ScalarMult(publicKey, e)
	right1.Add(right1, tmp)

	if !left1.Equal(right1) {
		return fmt.Errorf("invalid proof: first equation fails")
	}

	// check 2:  z·C1 == A2 + e·D
	left2 := publicKey.New()
	left2.ScalarMult(c1, proof.Z)

	right2 := publicKey.New()
	right2.Set(proof.A2)
	tmp.ScalarMult(D, e)
	right2.Add(right2, tmp)

	if !left2.Equal(right2) {
		return fmt.Errorf("invalid proof: second equation fails")
	}

	return nil
}

// Serialize encodes the proof as A1, A2 and Z, coordinates big-endian padded
// to 32 bytes.
func (p *DecryptionProof) Serialize() []byte {
	buf := make([]byte, 0, SerializedProofSize)
	for _, pt := range []ecc.Point{p.A1, p.A2} {
		x, y := pt.Point()
		buf = append(buf, padCoord(x)...)
		buf = append(buf, padCoord(y)...)
	}
	return append(buf, padCoord(p.Z)...)
}

// DeserializeDecryptionProof decodes a proof serialized with Serialize, with
// the points allocated on the given curve type.
func DeserializeDecryptionProof(curveType string, data []byte) (DecryptionProof, error) {
	if len(data) != SerializedProofSize {
		return DecryptionProof{}, fmt.Errorf("invalid proof length: got %d bytes, expected %d", len(data), SerializedProofSize)
	}
	if !curves.IsValid(curveType) {
		return DecryptionProof{}, fmt.Errorf("%w: %q", ErrInvalidCurveType, curveType)
	}
	coords := make([]*big.Int, 4)
	for i := range coords {
		coords[i] = new(big.Int).SetBytes(data[i*sizeCoord : (i+1)*sizeCoord])
	}
	return DecryptionProof{
		A1: curves.New(curveType).SetPoint(coords[0], coords[1]),
		A2: curves.New(curveType).SetPoint(coords[2], coords[3]),
		Z:  new(big.Int).SetBytes(data[2*sizePoint:]),
	}, nil
}

// sharedSecretPart computes D = C2 - M·G for the plaintext msg.
func sharedSecretPart(publicKey, c2 ecc.Point, msg *big.Int) ecc.Point {
	m := new(big.Int).Mod(msg, publicKey.Order())
	M := publicKey.New()
	M.ScalarBaseMult(m)

	D := publicKey.New()
	D.Set(c2)
	negM := publicKey.New()
	negM.Neg(M)
	D.Add(D, negM)
	return D
}

// hashPointsToScalar hashes a sequence of points to a scalar using Poseidon.
// This is the Fiat-Shamir transform. Coordinates are reduced into the
// Poseidon field first, so curves whose base field is larger than the
// Poseidon one are hashed consistently by prover and verifier.
func hashPointsToScalar(pts ...ecc.Point) *big.Int {
	points := []*big.Int{}
	for _, p := range pts {
		x, y := p.Point()
		points = append(points,
			crypto.BigToFF(constants.Q, new(big.Int).Set(x)),
			crypto.BigToFF(constants.Q, new(big.Int).Set(y)))
	}
	digest, err := poseidon.MultiPoseidon(points...)
	if err != nil {
		panic(fmt.Sprintf("failed to hash points: %v", err))
	}
	return digest
}
