package elgamal

import (
	"encoding/json"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
)

func TestCiphertextHomomorphicAdd(t *testing.T) {
	c := qt.New(t)

	curve := curves.New(curves.DefaultCurveType)
	publicKey, privateKey, err := GenerateKey(curve)
	c.Assert(err, qt.IsNil)

	// start from an encryption of zero and accumulate a few votes
	acc, err := NewCiphertext(curve).Encrypt(big.NewInt(0), publicKey, nil)
	c.Assert(err, qt.IsNil)

	for range 3 {
		one, err := NewCiphertext(curve).Encrypt(big.NewInt(1), publicKey, nil)
		c.Assert(err, qt.IsNil)
		acc = NewCiphertext(curve).Add(acc, one)
	}

	_, sum, err := Decrypt(publicKey, privateKey, acc.C1, acc.C2, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(sum.Cmp(big.NewInt(3)), qt.Equals, 0)

	// subtraction undoes one of the additions
	one, err := NewCiphertext(curve).Encrypt(big.NewInt(1), publicKey, nil)
	c.Assert(err, qt.IsNil)
	acc = NewCiphertext(curve).Sub(acc, one)
	_, sum, err = Decrypt(publicKey, privateKey, acc.C1, acc.C2, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(sum.Cmp(big.NewInt(2)), qt.Equals, 0)
}

func TestCiphertextSerialization(t *testing.T) {
	c := qt.New(t)

	curve := curves.New(curves.DefaultCurveType)
	publicKey, _, err := GenerateKey(curve)
	c.Assert(err, qt.IsNil)

	ct, err := NewCiphertext(curve).Encrypt(big.NewInt(7), publicKey, nil)
	c.Assert(err, qt.IsNil)

	data := ct.Serialize()
	c.Assert(len(data), qt.Equals, SerializedCiphertextSize)

	// serialization is deterministic
	c.Assert(ct.Serialize(), qt.DeepEquals, data)

	restored, err := DeserializeCiphertext(curves.DefaultCurveType, data)
	c.Assert(err, qt.IsNil)
	c.Assert(restored.C1.Equal(ct.C1), qt.IsTrue)
	c.Assert(restored.C2.Equal(ct.C2), qt.IsTrue)

	c.Run("bad length", func(c *qt.C) {
		_, err := DeserializeCiphertext(curves.DefaultCurveType, data[:len(data)-1])
		c.Assert(err, qt.IsNotNil)
	})

	c.Run("bad curve type", func(c *qt.C) {
		_, err := DeserializeCiphertext("invalid_curve", data)
		c.Assert(err, qt.IsNotNil)
	})
}

func TestCiphertextJSON(t *testing.T) {
	c := qt.New(t)

	curve := curves.New(curves.DefaultCurveType)
	publicKey, _, err := GenerateKey(curve)
	c.Assert(err, qt.IsNil)

	ct, err := NewCiphertext(curve).Encrypt(big.NewInt(2), publicKey, nil)
	c.Assert(err, qt.IsNil)

	data, err := json.Marshal(ct)
	c.Assert(err, qt.IsNil)

	restored := &Ciphertext{}
	c.Assert(json.Unmarshal(data, restored), qt.IsNil)
	c.Assert(restored.CurveType, qt.Equals, ct.CurveType)
	c.Assert(restored.C1.Equal(ct.C1), qt.IsTrue)
	c.Assert(restored.C2.Equal(ct.C2), qt.IsTrue)
}

func TestCiphertextEncryptWithFixedK(t *testing.T) {
	c := qt.New(t)

	curve := curves.New(curves.DefaultCurveType)
	publicKey, _, err := GenerateKey(curve)
	c.Assert(err, qt.IsNil)

	k, err := RandK(publicKey.Order())
	c.Assert(err, qt.IsNil)

	// same message and nonce produce the same ciphertext
	ct1, err := NewCiphertext(curve).Encrypt(big.NewInt(5), publicKey, k)
	c.Assert(err, qt.IsNil)
	ct2, err := NewCiphertext(curve).Encrypt(big.NewInt(5), publicKey, k)
	c.Assert(err, qt.IsNil)
	c.Assert(ct1.Serialize(), qt.DeepEquals, ct2.Serialize())
	c.Assert(CheckK(ct1.C1, k), qt.IsTrue)

	// a different nonce produces a different ciphertext
	k2, err := RandK(publicKey.Order())
	c.Assert(err, qt.IsNil)
	ct3, err := NewCiphertext(curve).Encrypt(big.NewInt(5), publicKey, k2)
	c.Assert(err, qt.IsNil)
	c.Assert(ct1.Serialize(), qt.Not(qt.DeepEquals), ct3.Serialize())
	c.Assert(CheckK(ct3.C1, k), qt.IsFalse)
}

func TestDecryptOutOfRange(t *testing.T) {
	c := qt.New(t)

	curve := curves.New(curves.DefaultCurveType)
	publicKey, privateKey, err := GenerateKey(curve)
	c.Assert(err, qt.IsNil)

	ct, err := NewCiphertext(curve).Encrypt(big.NewInt(500), publicKey, nil)
	c.Assert(err, qt.IsNil)

	// the baby-step giant-step search fails when the bound is too low
	_, _, err = Decrypt(publicKey, privateKey, ct.C1, ct.C2, 100)
	c.Assert(err, qt.IsNotNil)

	_, msg, err := Decrypt(publicKey, privateKey, ct.C1, ct.C2, 1000)
	c.Assert(err, qt.IsNil)
	c.Assert(msg.Cmp(big.NewInt(500)), qt.Equals, 0)
}
