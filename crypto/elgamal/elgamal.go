// Package elgamal implements additively homomorphic ElGamal encryption over
// the curves provided by the ecc package. Messages are encoded in the
// exponent, so the sum of two ciphertexts decrypts to the sum of the
// plaintexts, and decryption needs a bounded discrete log search.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/sealedvote/sealedvote-node/crypto"
	"github.com/sealedvote/sealedvote-node/crypto/ecc"
)

// RandK draws a fresh encryption nonce reduced into the group order.
func RandK(order *big.Int) (*big.Int, error) {
	kBytes := make([]byte, 20)
	if _, err := rand.Read(kBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random k: %v", err)
	}
	return crypto.BigToFF(order, new(big.Int).SetBytes(kBytes)), nil
}

// EncryptWithK encrypts msg under pubKey with the caller-supplied nonce k
// and returns the ciphertext pair (C1, C2) = (k*G, msg*G + k*pubKey).
func EncryptWithK(pubKey ecc.Point, msg, k *big.Int) (ecc.Point, ecc.Point) {
	msg.Mod(msg, pubKey.Order())

	c1 := pubKey.New()
	c1.ScalarBaseMult(k)

	// shared secret s = k * pubKey
	s := pubKey.New()
	s.ScalarMult(pubKey, k)

	// message point M = msg * G
	m := pubKey.New()
	m.ScalarBaseMult(msg)

	c2 := pubKey.New()
	c2.Add(m, s)
	return c1, c2
}

// GenerateKey produces an ElGamal key pair on the curve of the given point.
func GenerateKey(curve ecc.Point) (publicKey ecc.Point, privateKey *big.Int, err error) {
	d, err := rand.Int(rand.Reader, curve.Order())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key scalar: %v", err)
	}
	if d.Sign() == 0 {
		d = big.NewInt(1)
	}
	publicKey = curve.New()
	publicKey.SetGenerator()
	publicKey.ScalarMult(publicKey, d)
	return publicKey, d, nil
}

// Decrypt recovers the plaintext point M = c2 - d*c1 and searches its
// discrete log m in [0, maxMessage]. An error is returned when m falls
// outside that interval.
func Decrypt(
	publicKey ecc.Point,
	privateKey *big.Int,
	c1, c2 ecc.Point,
	maxMessage uint64,
) (M ecc.Point, message *big.Int, err error) {
	if privateKey == nil || privateKey.Sign() <= 0 {
		return nil, nil, fmt.Errorf("Decrypt: empty or negative private key")
	}
	if maxMessage == 0 {
		return nil, nil, fmt.Errorf("Decrypt: maxMessage == 0")
	}

	M = c2.New()
	M.Set(c2)
	tmp := c1.New()
	tmp.ScalarMult(c1, privateKey)
	tmp.Neg(tmp)
	M.Add(M, tmp)

	G := publicKey.New()
	G.SetGenerator()
	message, err = BabyStepGiantStepECC(M, G, maxMessage)
	if err != nil {
		return nil, nil, err
	}
	return M, message, nil
}

// BabyStepGiantStepECC solves beta = m*alpha for m in [0, max] with the
// baby-step giant-step algorithm. The search is deterministic, so it always
// finds m when one exists in the interval. Marshaled points serve as table
// keys to keep the inner loop allocation-light.
func BabyStepGiantStepECC(beta, alpha ecc.Point, max uint64) (*big.Int, error) {
	// step size m = ceil(sqrt(max))
	m := new(big.Int).Sqrt(new(big.Int).SetUint64(max))
	if new(big.Int).Mul(m, m).Cmp(new(big.Int).SetUint64(max)) < 0 {
		m.Add(m, big.NewInt(1))
	}
	mU64 := m.Uint64()

	// table of j*alpha for j in [0, m-1]
	baby := alpha.New()
	baby.SetZero()
	table := make(map[string]uint64, mU64+1)
	for j := uint64(0); j < mU64; j++ {
		table[pointKey(baby)] = j
		baby.Add(baby, alpha)
	}

	// giant-step decrement -m*alpha
	c := alpha.New()
	c.ScalarMult(alpha, m)
	c.Neg(c)

	giant := beta.New()
	giant.Set(beta)
	for i := uint64(0); i <= mU64; i++ {
		if j, ok := table[pointKey(giant)]; ok {
			x := new(big.Int).SetUint64(i*mU64 + j)
			if x.Cmp(new(big.Int).SetUint64(max)) <= 0 {
				return x, nil
			}
		}
		giant.Add(giant, c)
	}
	return nil, fmt.Errorf("bsgs: discrete log not found in interval")
}

func pointKey(p ecc.Point) string {
	return string(p.Marshal())
}

// CheckK reports whether nonce k produced the ciphertext component c1, that
// is whether c1 == k*G. No decryption or discrete log is involved.
func CheckK(c1 ecc.Point, k *big.Int) bool {
	kG := c1.New()
	kG.ScalarBaseMult(k)
	return kG.Equal(c1)
}
