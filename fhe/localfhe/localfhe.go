/*
Package localfhe implements fhe.Scheme as a trusted executor over EC-ElGamal
ciphertexts. It is the backend for local and development networks: a single
process that legitimately holds the decryption key, the same way an FHE
coprocessor network collectively does.

Handles are keccak256 digests of the serialized ciphertext, so a handle is a
content address for the encrypted value it references. Handle to ciphertext
bindings persist in a prefixed key-value namespace:

  - c/ : handle → serialized ciphertext
  - d/ : handle → publicly-decryptable marker
  - k/ : scheme key material

Add is genuinely homomorphic. Equals and Select cross the decryption boundary
internally (the executor holds the key) and return fresh re-encryptions, so
callers never observe anything but opaque handles. Ciphertexts are released
to the decryption authority only after MarkPubliclyDecryptable.
*/
package localfhe

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"

	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
	"github.com/sealedvote/sealedvote-node/crypto/elgamal"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
	"github.com/sealedvote/sealedvote-node/fhe"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/types"
)

// DefaultMaxMessage is the default inclusive upper bound for plaintext values
// recovered by the baby-step giant-step search.
const DefaultMaxMessage = 65535

var (
	ciphertextPrefix  = []byte("c/")
	decryptablePrefix = []byte("d/")
	keyPrefix         = []byte("k/")

	privateKeyDBKey = []byte("scheme")
)

// Config configures a LocalScheme.
type Config struct {
	// CurveType selects the ElGamal curve. Empty means the default curve.
	CurveType string
	// MaxMessage is the inclusive upper bound for recoverable plaintexts.
	// Zero means DefaultMaxMessage.
	MaxMessage uint64
	// Authority is the Ethereum address whose attestations
	// VerifySignedCleartext accepts. Verification fails closed when unset.
	Authority common.Address
	// PrivateKey optionally fixes the scheme encryption key (hex scalar).
	// When empty the key is loaded from the database or freshly generated.
	PrivateKey string
}

// LocalScheme is a trusted-executor implementation of fhe.Scheme over
// EC-ElGamal. Safe for concurrent use.
type LocalScheme struct {
	db         db.Database
	curveType  string
	maxMessage uint64
	authority  common.Address
	publicKey  ecc.Point
	privateKey *big.Int
	lock       sync.Mutex
}

// New creates a LocalScheme backed by the given database. The scheme key is
// taken from cfg, recovered from a previous run, or generated.
func New(database db.Database, cfg Config) (*LocalScheme, error) {
	curveType := cfg.CurveType
	if curveType == "" {
		curveType = curves.DefaultCurveType
	}
	if !curves.IsValid(curveType) {
		return nil, fmt.Errorf("unsupported curve type %q", curveType)
	}
	maxMessage := cfg.MaxMessage
	if maxMessage == 0 {
		maxMessage = DefaultMaxMessage
	}
	s := &LocalScheme{
		db:         database,
		curveType:  curveType,
		maxMessage: maxMessage,
		authority:  cfg.Authority,
	}
	if err := s.loadOrCreateKey(cfg.PrivateKey); err != nil {
		return nil, fmt.Errorf("could not initialize scheme key: %w", err)
	}
	return s, nil
}

// loadOrCreateKey sets up the scheme keypair. A configured key wins over a
// persisted one; the active key is always persisted so handles stay valid
// across restarts.
func (s *LocalScheme) loadOrCreateKey(hexKey string) error {
	curve := curves.New(s.curveType)
	if hexKey != "" {
		kb, err := types.HexStringToHexBytes(hexKey)
		if err != nil {
			return fmt.Errorf("malformed private key: %w", err)
		}
		priv := new(big.Int).SetBytes(kb)
		if priv.Sign() <= 0 || priv.Cmp(curve.Order()) >= 0 {
			return fmt.Errorf("private key outside the curve order")
		}
		s.setKey(curve, priv)
		return s.persistKey()
	}

	keyDB := prefixeddb.NewPrefixedDatabase(s.db, keyPrefix)
	data, err := keyDB.Get(privateKeyDBKey)
	switch {
	case err == nil:
		s.setKey(curve, new(big.Int).SetBytes(data))
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		_, priv, err := elgamal.GenerateKey(curve)
		if err != nil {
			return err
		}
		s.setKey(curve, priv)
		log.Debugw("generated new scheme encryption key", "curve", s.curveType)
		return s.persistKey()
	default:
		return err
	}
}

func (s *LocalScheme) setKey(curve ecc.Point, priv *big.Int) {
	pub := curve.New()
	pub.ScalarBaseMult(priv)
	s.privateKey = priv
	s.publicKey = pub
}

func (s *LocalScheme) persistKey() error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, keyPrefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(privateKeyDBKey, s.privateKey.Bytes()); err != nil {
		return err
	}
	return wTx.Commit()
}

// PublicKey returns the scheme encryption public key.
func (s *LocalScheme) PublicKey() ecc.Point {
	pub := s.publicKey.New()
	pub.Set(s.publicKey)
	return pub
}

// KeyPair returns the scheme keypair. The local profile runs the decryption
// authority embedded in the same process, sharing the executor's key with it
// at construction time.
func (s *LocalScheme) KeyPair() (ecc.Point, *big.Int) {
	return s.PublicKey(), new(big.Int).Set(s.privateKey)
}

// MaxMessage returns the inclusive upper bound for recoverable plaintexts.
func (s *LocalScheme) MaxMessage() uint64 {
	return s.maxMessage
}

// EncryptConstant encrypts the public constant v under the scheme key and
// returns the handle of the fresh ciphertext.
func (s *LocalScheme) EncryptConstant(v uint64) (fhe.Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.encryptConstant(v)
}

func (s *LocalScheme) encryptConstant(v uint64) (fhe.Handle, error) {
	ct, err := elgamal.NewCiphertext(curves.New(s.curveType)).
		Encrypt(new(big.Int).SetUint64(v), s.publicKey, nil)
	if err != nil {
		return nil, err
	}
	return s.storeCiphertext(ct)
}

// Add returns a handle to the encrypted sum of the values referenced by a
// and b.
func (s *LocalScheme) Add(a, b fhe.Handle) (fhe.Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	cta, err := s.ciphertext(a)
	if err != nil {
		return nil, err
	}
	ctb, err := s.ciphertext(b)
	if err != nil {
		return nil, err
	}
	sum := elgamal.NewCiphertext(curves.New(s.curveType)).Add(cta, ctb)
	return s.storeCiphertext(sum)
}

// Equals returns a handle to an encrypted 1 if a and b reference equal
// values, or to an encrypted 0 otherwise. The comparison happens inside the
// capability boundary: the executor checks whether a-b decrypts to the zero
// point and re-encrypts the verdict with fresh randomness.
func (s *LocalScheme) Equals(a, b fhe.Handle) (fhe.Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	cta, err := s.ciphertext(a)
	if err != nil {
		return nil, err
	}
	ctb, err := s.ciphertext(b)
	if err != nil {
		return nil, err
	}
	diff := elgamal.NewCiphertext(curves.New(s.curveType)).Sub(cta, ctb)
	verdict := uint64(0)
	if s.decryptsToZero(diff) {
		verdict = 1
	}
	return s.encryptConstant(verdict)
}

// Select returns a handle to the value referenced by a if cond references an
// encrypted 1, or by b otherwise. The chosen ciphertext is re-randomized, so
// the returned handle does not reveal which branch was taken.
func (s *LocalScheme) Select(cond, a, b fhe.Handle) (fhe.Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	condCt, err := s.ciphertext(cond)
	if err != nil {
		return nil, err
	}
	cta, err := s.ciphertext(a)
	if err != nil {
		return nil, err
	}
	ctb, err := s.ciphertext(b)
	if err != nil {
		return nil, err
	}
	chosen := ctb
	if s.decryptsToOne(condCt) {
		chosen = cta
	}
	// re-randomize by adding a fresh encryption of zero
	mask, err := elgamal.NewCiphertext(curves.New(s.curveType)).
		Encrypt(big.NewInt(0), s.publicKey, nil)
	if err != nil {
		return nil, err
	}
	rerandomized := elgamal.NewCiphertext(curves.New(s.curveType)).Add(chosen, mask)
	return s.storeCiphertext(rerandomized)
}

// MarkPubliclyDecryptable flags the referenced ciphertext as releasable to
// the decryption authority.
func (s *LocalScheme) MarkPubliclyDecryptable(h fhe.Handle) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.ciphertext(h); err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, decryptablePrefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(h, []byte{1}); err != nil {
		return err
	}
	return wTx.Commit()
}

// DecryptableCiphertext releases the ciphertext referenced by h. It refuses
// with fhe.ErrNotDecryptable unless the handle was marked publicly
// decryptable.
func (s *LocalScheme) DecryptableCiphertext(h fhe.Handle) (*elgamal.Ciphertext, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ct, err := s.ciphertext(h)
	if err != nil {
		return nil, err
	}
	if _, err := prefixeddb.NewPrefixedReader(s.db, decryptablePrefix).Get(h); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", fhe.ErrNotDecryptable, h.String())
		}
		return nil, err
	}
	return ct, nil
}

// VerifySignedCleartext checks that cleartext values are the authentic
// decryptions of the referenced ciphertexts. The proof blob must be a
// CBOR-encoded types.ResultsAttestation matching the handles and cleartexts,
// ECDSA-signed by the configured authority. Chaum-Pedersen decryption proofs
// are verified against the stored ciphertexts when the attestation carries
// them.
func (s *LocalScheme) VerifySignedCleartext(handles []fhe.Handle, cleartext []uint64, proof []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.authority == (common.Address{}) {
		return fmt.Errorf("%w: no authority address configured", fhe.ErrInvalidAttestation)
	}
	att := &types.ResultsAttestation{}
	if err := cbor.Unmarshal(proof, att); err != nil {
		return fmt.Errorf("%w: undecodable attestation: %v", fhe.ErrInvalidAttestation, err)
	}
	if len(handles) != len(cleartext) ||
		len(att.Tallies) != len(handles) ||
		len(att.Results) != len(cleartext) {
		return fmt.Errorf("%w: length mismatch", fhe.ErrInvalidAttestation)
	}
	for i, h := range handles {
		if !att.Tallies[i].Equal(h) {
			return fmt.Errorf("%w: attested handle %d does not match", fhe.ErrInvalidAttestation, i)
		}
		if att.Results[i] == nil ||
			att.Results[i].MathBigInt().Cmp(new(big.Int).SetUint64(cleartext[i])) != 0 {
			return fmt.Errorf("%w: attested result %d does not match", fhe.ErrInvalidAttestation, i)
		}
	}

	sig, err := ethereum.BytesToSignature(att.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", fhe.ErrInvalidAttestation, err)
	}
	if ok, _ := sig.Verify(att.SignableBytes(), s.authority); !ok {
		return fmt.Errorf("%w: signature not from authority %s", fhe.ErrInvalidAttestation, s.authority.Hex())
	}

	if len(att.DecryptionProofs) > 0 {
		if len(att.DecryptionProofs) != len(handles) {
			return fmt.Errorf("%w: decryption proof count mismatch", fhe.ErrInvalidAttestation)
		}
		for i, rawProof := range att.DecryptionProofs {
			ct, err := s.ciphertext(handles[i])
			if err != nil {
				return err
			}
			dp, err := elgamal.DeserializeDecryptionProof(s.curveType, rawProof)
			if err != nil {
				return fmt.Errorf("%w: undecodable decryption proof %d: %v", fhe.ErrInvalidAttestation, i, err)
			}
			if err := elgamal.VerifyDecryptionProof(s.publicKey, ct.C1, ct.C2,
				new(big.Int).SetUint64(cleartext[i]), dp); err != nil {
				return fmt.Errorf("%w: decryption proof %d: %v", fhe.ErrInvalidAttestation, i, err)
			}
		}
	}
	return nil
}

// DecodeExternal validates an externally produced ElGamal ciphertext,
// registers it and returns its handle. The proof blob is accepted opaquely;
// external well-formedness proofs belong to stricter backends.
func (s *LocalScheme) DecodeExternal(ciphertext, proof []byte) (fhe.Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	_ = proof

	ct, err := elgamal.DeserializeCiphertext(s.curveType, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fhe.ErrInvalidCiphertext, err)
	}
	// curve membership check through the marshal round trip
	for _, p := range []ecc.Point{ct.C1, ct.C2} {
		if err := p.Unmarshal(p.Marshal()); err != nil {
			return nil, fmt.Errorf("%w: point not on curve: %v", fhe.ErrInvalidCiphertext, err)
		}
	}
	return s.storeCiphertext(ct)
}

// ciphertext loads and decodes the ciphertext referenced by h.
func (s *LocalScheme) ciphertext(h fhe.Handle) (*elgamal.Ciphertext, error) {
	if len(h) != fhe.HandleLength {
		return nil, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h.String())
	}
	data, err := prefixeddb.NewPrefixedReader(s.db, ciphertextPrefix).Get(h)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", fhe.ErrUnknownHandle, h.String())
		}
		return nil, err
	}
	return elgamal.DeserializeCiphertext(s.curveType, data)
}

// storeCiphertext persists ct under its content-address handle.
func (s *LocalScheme) storeCiphertext(ct *elgamal.Ciphertext) (fhe.Handle, error) {
	data := ct.Serialize()
	handle := fhe.Handle(ethereum.HashRaw(data))
	wTx := prefixeddb.NewPrefixedDatabase(s.db, ciphertextPrefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(handle, data); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, err
	}
	return handle, nil
}

// decryptsToZero reports whether ct encrypts the value 0.
func (s *LocalScheme) decryptsToZero(ct *elgamal.Ciphertext) bool {
	zero := ct.C1.New()
	zero.SetZero()
	return s.decryptPoint(ct).Equal(zero)
}

// decryptsToOne reports whether ct encrypts the value 1.
func (s *LocalScheme) decryptsToOne(ct *elgamal.Ciphertext) bool {
	g := ct.C1.New()
	g.SetGenerator()
	return s.decryptPoint(ct).Equal(g)
}

// decryptPoint recovers the plaintext point M = C2 - d·C1.
func (s *LocalScheme) decryptPoint(ct *elgamal.Ciphertext) ecc.Point {
	dC1 := ct.C1.New()
	dC1.ScalarMult(ct.C1, s.privateKey)
	neg := ct.C1.New()
	neg.Neg(dC1)
	m := ct.C1.New()
	m.Set(ct.C2)
	m.Add(m, neg)
	return m
}
