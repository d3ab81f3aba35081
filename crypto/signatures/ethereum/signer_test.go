package ethereum

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/sealedvote/sealedvote-node/util"
)

func TestNewSigner(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	c.Assert(signer.D, qt.IsNotNil)
	c.Assert(signer.X, qt.IsNotNil)
	c.Assert(signer.Y, qt.IsNotNil)
	c.Assert(signer.Address(), qt.Not(qt.Equals), common.Address{})
}

func TestNewSignerFromHex(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)

	signer, err := NewSignerFromHex(common.Bytes2Hex(ethcrypto.FromECDSA(privKey)))
	c.Assert(err, qt.IsNil)
	c.Assert(signer.Address(), qt.Equals, ethcrypto.PubkeyToAddress(privKey.PublicKey))

	_, err = NewSignerFromHex("not hex at all")
	c.Assert(err, qt.IsNotNil)
	_, err = NewSignerFromHex("1234")
	c.Assert(err, qt.IsNotNil)
}

func TestSignerSign(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)

	message := []byte("cast vote on poll 42")
	signature, err := signer.Sign(message)
	c.Assert(err, qt.IsNil)
	c.Assert(signature.Valid(), qt.IsTrue)

	ok, _ := signature.Verify(message, signer.Address())
	c.Assert(ok, qt.IsTrue)

	recoveredAddr, err := AddrFromSignature(message, signature)
	c.Assert(err, qt.IsNil)
	c.Assert(recoveredAddr, qt.Equals, signer.Address())
}

func TestNewSignerFromSeed(t *testing.T) {
	c := qt.New(t)

	seed := util.RandomBytes(64)
	signer, err := NewSignerFromSeed(seed)
	c.Assert(err, qt.IsNil)

	// same seed, same key
	again, err := NewSignerFromSeed(seed)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Address(), qt.Equals, signer.Address())

	msg := util.RandomBytes(32)
	signature, err := signer.Sign(msg)
	c.Assert(err, qt.IsNil)
	ok, _ := signature.Verify(msg, signer.Address())
	c.Assert(ok, qt.IsTrue)
}
