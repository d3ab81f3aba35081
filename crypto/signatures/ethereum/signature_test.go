package ethereum

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

func TestBytesToSignature(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	raw, err := ethcrypto.Sign(HashMessage([]byte("ballot envelope")), privKey)
	c.Assert(err, qt.IsNil)
	c.Assert(raw, qt.HasLen, SignatureLength)

	c.Run("well formed", func(c *qt.C) {
		sig, err := BytesToSignature(raw)
		c.Assert(err, qt.IsNil)
		c.Assert(sig.Valid(), qt.IsTrue)
		c.Assert(sig.recovery, qt.Equals, raw[64])
	})

	c.Run("truncated", func(c *qt.C) {
		_, err := BytesToSignature(raw[:32])
		c.Assert(err, qt.IsNotNil)
	})

	c.Run("bad recovery byte", func(c *qt.C) {
		mangled := append([]byte{}, raw...)
		mangled[64] = 99
		_, err := BytesToSignature(mangled)
		c.Assert(err, qt.IsNotNil)
	})
}

func TestSignatureValid(t *testing.T) {
	c := qt.New(t)
	c.Assert((&ECDSASignature{R: big.NewInt(123), S: big.NewInt(456)}).Valid(), qt.IsTrue)
	c.Assert((&ECDSASignature{S: big.NewInt(456)}).Valid(), qt.IsFalse)
	c.Assert((&ECDSASignature{R: big.NewInt(123)}).Valid(), qt.IsFalse)
	c.Assert((&ECDSASignature{}).Valid(), qt.IsFalse)
}

func TestSignatureBytesRoundTrip(t *testing.T) {
	c := qt.New(t)

	sig := &ECDSASignature{R: big.NewInt(123), S: big.NewInt(456), recovery: 1}
	raw := sig.Bytes()
	c.Assert(raw, qt.HasLen, SignatureLength)

	// small components must come out left-padded
	c.Assert(new(big.Int).SetBytes(raw[:32]).Cmp(sig.R), qt.Equals, 0)
	c.Assert(new(big.Int).SetBytes(raw[32:64]).Cmp(sig.S), qt.Equals, 0)
	c.Assert(raw[64], qt.Equals, sig.recovery)

	back, err := BytesToSignature(raw)
	c.Assert(err, qt.IsNil)
	c.Assert(back.R.Cmp(sig.R), qt.Equals, 0)
	c.Assert(back.S.Cmp(sig.S), qt.Equals, 0)
	c.Assert(back.recovery, qt.Equals, sig.recovery)
}

func TestSignatureVerify(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	voter := ethcrypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte("poll 7 choice 2")
	raw, err := ethcrypto.Sign(HashMessage(msg), privKey)
	c.Assert(err, qt.IsNil)
	sig, err := BytesToSignature(raw)
	c.Assert(err, qt.IsNil)

	ok, recoveredPub := sig.Verify(msg, voter)
	c.Assert(ok, qt.IsTrue)
	c.Assert(recoveredPub, qt.DeepEquals, ethcrypto.FromECDSAPub(&privKey.PublicKey))

	ok, _ = sig.Verify([]byte("poll 7 choice 3"), voter)
	c.Assert(ok, qt.IsFalse)

	otherKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	ok, _ = sig.Verify(msg, ethcrypto.PubkeyToAddress(otherKey.PublicKey))
	c.Assert(ok, qt.IsFalse)

	ok, _ = (&ECDSASignature{S: big.NewInt(456)}).Verify(msg, voter)
	c.Assert(ok, qt.IsFalse)
}

func TestAddrFromSignature(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	voter := ethcrypto.PubkeyToAddress(privKey.PublicKey)

	msg := []byte("participation receipt")
	raw, err := ethcrypto.Sign(HashMessage(msg), privKey)
	c.Assert(err, qt.IsNil)
	sig, err := BytesToSignature(raw)
	c.Assert(err, qt.IsNil)

	addr, err := AddrFromSignature(msg, sig)
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, voter)

	_, err = AddrFromSignature(msg, nil)
	c.Assert(err, qt.IsNotNil)
	_, err = AddrFromSignature(msg, &ECDSASignature{})
	c.Assert(err, qt.IsNotNil)
}

// A fixed vector produced by a browser wallet, to pin compatibility with the
// 27/28 recovery byte convention used in the wild.
func TestBrowserWalletVector(t *testing.T) {
	c := qt.New(t)

	message := []byte("Hello world!")
	sigHex := strings.TrimPrefix(
		"0x4fe294db29ddda38c1a4d170db34adc0f7431d7b0cbb0ae8adb6b4ea94f1bde159352a6ab3c16f62b5fa3d84bfc21d65aa2aacb3a841034f928053b4a6fcf7c21c",
		"0x")
	wallet := common.HexToAddress("0xbF7b6386ECb6b8bFCc548D2C51F142a513DEb752")

	raw, err := hex.DecodeString(sigHex)
	c.Assert(err, qt.IsNil)
	c.Assert(raw, qt.HasLen, SignatureLength)

	sig, err := BytesToSignature(raw)
	c.Assert(err, qt.IsNil)

	addr, err := AddrFromSignature(message, sig)
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, wallet)

	ok, _ := sig.Verify(message, wallet)
	c.Assert(ok, qt.IsTrue)
	ok, _ = sig.Verify([]byte("Wrong message!"), wallet)
	c.Assert(ok, qt.IsFalse)
}
