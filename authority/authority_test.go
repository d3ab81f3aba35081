package authority

import (
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/metadb"
	"github.com/sealedvote/sealedvote-node/fhe"
	"github.com/sealedvote/sealedvote-node/fhe/localfhe"
	"github.com/sealedvote/sealedvote-node/types"
)

func newTestAuthority(t *testing.T, attachProofs bool) (*qt.C, *Authority, *localfhe.LocalScheme) {
	c := qt.New(t)

	signer, err := ethereum.NewSignerFromSeed([]byte("authority test signer"))
	c.Assert(err, qt.IsNil)

	database, err := metadb.New(db.TypePebble, filepath.Join(t.TempDir(), "db"))
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })

	scheme, err := localfhe.New(database, localfhe.Config{Authority: signer.Address()})
	c.Assert(err, qt.IsNil)

	auth, err := New(scheme, signer, Config{AttachProofs: attachProofs})
	c.Assert(err, qt.IsNil)
	return c, auth, scheme
}

// releasedHandle encrypts v and marks the handle publicly decryptable, as
// FinalizePoll does for real tallies.
func releasedHandle(c *qt.C, scheme *localfhe.LocalScheme, v uint64) fhe.Handle {
	h, err := scheme.EncryptConstant(v)
	c.Assert(err, qt.IsNil)
	c.Assert(scheme.MarkPubliclyDecryptable(h), qt.IsNil)
	return h
}

func TestAttestAndVerify(t *testing.T) {
	c, auth, scheme := newTestAuthority(t, false)

	handles := []fhe.Handle{
		releasedHandle(c, scheme, 3),
		releasedHandle(c, scheme, 0),
		releasedHandle(c, scheme, 12),
	}

	att, err := auth.Attest(context.Background(), types.PollID(7), handles)
	c.Assert(err, qt.IsNil)
	c.Assert(att.PollID, qt.Equals, types.PollID(7))
	c.Assert(att.Tallies, qt.HasLen, 3)
	c.Assert(att.DecryptionProofs, qt.HasLen, 0)

	clear, err := ClearResults(att)
	c.Assert(err, qt.IsNil)
	c.Assert(clear, qt.DeepEquals, []uint64{3, 0, 12})

	// The scheme accepts exactly this attestation as the publication proof
	proof, err := EncodeProof(att)
	c.Assert(err, qt.IsNil)
	c.Assert(scheme.VerifySignedCleartext(handles, clear, proof), qt.IsNil)
}

func TestAttestWithDecryptionProofs(t *testing.T) {
	c, auth, scheme := newTestAuthority(t, true)

	handles := []fhe.Handle{
		releasedHandle(c, scheme, 5),
		releasedHandle(c, scheme, 2),
	}

	att, err := auth.Attest(context.Background(), types.PollID(1), handles)
	c.Assert(err, qt.IsNil)
	c.Assert(att.DecryptionProofs, qt.HasLen, 2)

	clear, err := ClearResults(att)
	c.Assert(err, qt.IsNil)
	proof, err := EncodeProof(att)
	c.Assert(err, qt.IsNil)
	c.Assert(scheme.VerifySignedCleartext(handles, clear, proof), qt.IsNil)

	// A proof set that does not match the ciphertexts is rejected even with
	// a valid signature, so swap the attested counts and re-sign
	att.Results[0], att.Results[1] = att.Results[1], att.Results[0]
	sig, err := authSigner(c).Sign(att.SignableBytes())
	c.Assert(err, qt.IsNil)
	att.Signature = sig.Bytes()
	proof, err = EncodeProof(att)
	c.Assert(err, qt.IsNil)
	err = scheme.VerifySignedCleartext(handles, []uint64{2, 5}, proof)
	c.Assert(err, qt.ErrorIs, fhe.ErrInvalidAttestation)
}

func authSigner(c *qt.C) *ethereum.Signer {
	signer, err := ethereum.NewSignerFromSeed([]byte("authority test signer"))
	c.Assert(err, qt.IsNil)
	return signer
}

func TestAttestRefusesSealedHandles(t *testing.T) {
	c, auth, scheme := newTestAuthority(t, false)

	sealed, err := scheme.EncryptConstant(4)
	c.Assert(err, qt.IsNil)

	_, err = auth.Attest(context.Background(), types.PollID(0), []fhe.Handle{sealed})
	c.Assert(err, qt.ErrorIs, fhe.ErrNotDecryptable)

	_, err = auth.DecryptTallies(context.Background(), []fhe.Handle{sealed})
	c.Assert(err, qt.ErrorIs, fhe.ErrNotDecryptable)
}

func TestAttestRejectsForeignAuthority(t *testing.T) {
	c, _, scheme := newTestAuthority(t, false)

	// An attestation signed by anyone but the configured authority is junk
	impostor, err := ethereum.NewSignerFromSeed([]byte("impostor"))
	c.Assert(err, qt.IsNil)
	foreign, err := New(scheme, impostor, Config{})
	c.Assert(err, qt.IsNil)

	handles := []fhe.Handle{releasedHandle(c, scheme, 1), releasedHandle(c, scheme, 0)}
	att, err := foreign.Attest(context.Background(), types.PollID(2), handles)
	c.Assert(err, qt.IsNil)

	clear, err := ClearResults(att)
	c.Assert(err, qt.IsNil)
	proof, err := EncodeProof(att)
	c.Assert(err, qt.IsNil)
	err = scheme.VerifySignedCleartext(handles, clear, proof)
	c.Assert(err, qt.ErrorIs, fhe.ErrInvalidAttestation)
}

func TestDecryptTallies(t *testing.T) {
	c, auth, scheme := newTestAuthority(t, false)

	handles := make([]fhe.Handle, 4)
	want := []uint64{9, 0, 1, 300}
	for i, v := range want {
		handles[i] = releasedHandle(c, scheme, v)
	}

	got, err := auth.DecryptTallies(context.Background(), handles)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestAttestValidation(t *testing.T) {
	c, auth, scheme := newTestAuthority(t, false)

	_, err := auth.Attest(context.Background(), types.PollID(0), nil)
	c.Assert(err, qt.IsNotNil)

	_, err = New(nil, authSigner(c), Config{})
	c.Assert(err, qt.IsNotNil)
	_, err = New(scheme, nil, Config{})
	c.Assert(err, qt.IsNotNil)
}

func TestClearResults(t *testing.T) {
	c := qt.New(t)

	_, err := ClearResults(nil)
	c.Assert(err, qt.IsNotNil)

	_, err = ClearResults(&types.ResultsAttestation{Results: []*types.BigInt{nil}})
	c.Assert(err, qt.IsNotNil)

	huge := new(types.BigInt).SetBytes([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0})
	_, err = ClearResults(&types.ResultsAttestation{Results: []*types.BigInt{huge}})
	c.Assert(err, qt.IsNotNil)

	got, err := ClearResults(&types.ResultsAttestation{Results: []*types.BigInt{
		new(types.BigInt).SetUint64(42),
		new(types.BigInt).SetUint64(0),
	}})
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []uint64{42, 0})
}
