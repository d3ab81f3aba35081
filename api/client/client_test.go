package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/authority"
	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
	"github.com/sealedvote/sealedvote-node/crypto/elgamal"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/metadb"
	"github.com/sealedvote/sealedvote-node/fhe/localfhe"
	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
	"github.com/sealedvote/sealedvote-node/util"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (tc *testClock) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

func (tc *testClock) Advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = tc.now.Add(d)
}

type nodeEnv struct {
	c      *qt.C
	cli    *HTTPclient
	reg    *registry.Registry
	scheme *localfhe.LocalScheme
	auth   *authority.Authority
	clock  *testClock
	signer *ethereum.Signer
	encKey ecc.Point
}

// newTestNode starts a full node API on a random local port and connects a
// client to it.
func newTestNode(t *testing.T, version string) *nodeEnv {
	c := qt.New(t)

	database, err := metadb.New(db.TypePebble, filepath.Join(t.TempDir(), "db"))
	c.Assert(err, qt.IsNil)
	stg := storage.New(database)
	t.Cleanup(stg.Close)

	signer, err := ethereum.NewSignerFromSeed([]byte("client test authority"))
	c.Assert(err, qt.IsNil)

	scheme, err := localfhe.New(stg.FHEDatabase(), localfhe.Config{
		Authority: signer.Address(),
	})
	c.Assert(err, qt.IsNil)

	part, err := participation.New(filepath.Join(t.TempDir(), "participation"))
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = part.Close() })

	clock := newTestClock()
	reg := registry.New(stg, scheme, part, registry.Config{
		StrictProofs: true,
		TimeFunc:     clock.Now,
	})

	auth, err := authority.New(scheme, signer, authority.Config{AttachProofs: true})
	c.Assert(err, qt.IsNil)

	port := util.RandomInt(40000, 60000)
	_, err = api.New(&api.APIConfig{
		Host:          "127.0.0.1",
		Port:          port,
		Registry:      reg,
		Storage:       stg,
		Network:       "test",
		Version:       version,
		CurveType:     "bn254",
		EncryptionKey: scheme.PublicKey().Marshal(),
		Authority:     signer.Address(),
	})
	c.Assert(err, qt.IsNil)

	// Wait for the HTTP server to start
	time.Sleep(500 * time.Millisecond)

	cli, err := New(fmt.Sprintf("http://127.0.0.1:%d", port))
	c.Assert(err, qt.IsNil)

	// Recover the encryption key the way a remote voter would, from the
	// info endpoint rather than the in-process scheme.
	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	encKey := curves.New(info.CurveType)
	c.Assert(encKey.Unmarshal(info.EncryptionKey), qt.IsNil)

	return &nodeEnv{
		c:      c,
		cli:    cli,
		reg:    reg,
		scheme: scheme,
		auth:   auth,
		clock:  clock,
		signer: signer,
		encKey: encKey,
	}
}

// createActivePoll creates a poll whose window opened at the current fake
// time and lasts one hour.
func (e *nodeEnv) createActivePoll(options ...string) *api.PollResponse {
	if len(options) == 0 {
		options = []string{"yes", "no"}
	}
	now := e.clock.Now()
	poll, err := e.cli.CreatePoll(&api.PollRequest{
		Name:      "client test poll",
		Options:   options,
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	})
	e.c.Assert(err, qt.IsNil)
	return poll
}

// voteEnvelope builds a signed vote envelope with the choice encrypted under
// the encryption key advertised by the node.
func (e *nodeEnv) voteEnvelope(pollID types.PollID, signer *ethereum.Signer, choice uint64) *types.VoteEnvelope {
	ct, err := elgamal.NewCiphertext(e.encKey).
		Encrypt(new(big.Int).SetUint64(choice), e.encKey, nil)
	e.c.Assert(err, qt.IsNil)

	envelope := &types.VoteEnvelope{
		PollID:     pollID,
		Ciphertext: ct.Serialize(),
	}
	sig, err := signer.Sign(envelope.SignableBytes())
	e.c.Assert(err, qt.IsNil)
	envelope.Signature = sig.Bytes()
	return envelope
}

// attestation asks the authority for a signed attestation over the tallies
// of a finalized poll and returns the cleartext results and encoded proof.
func (e *nodeEnv) attestation(pollID types.PollID) ([]uint64, types.HexBytes) {
	poll, err := e.reg.Poll(pollID)
	e.c.Assert(err, qt.IsNil)

	att, err := e.auth.Attest(context.Background(), pollID, poll.Tallies)
	e.c.Assert(err, qt.IsNil)
	results, err := authority.ClearResults(att)
	e.c.Assert(err, qt.IsNil)
	proof, err := authority.EncodeProof(att)
	e.c.Assert(err, qt.IsNil)
	return results, proof
}

func newVoter(c *qt.C, seed string) *ethereum.Signer {
	signer, err := ethereum.NewSignerFromSeed([]byte(seed))
	c.Assert(err, qt.IsNil)
	return signer
}

func TestClientLifecycle(t *testing.T) {
	e := newTestNode(t, "0.1.0")
	c := e.c

	c.Assert(e.cli.CheckVersion(), qt.IsNil)

	info, err := e.cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.Network, qt.Equals, "test")
	c.Assert(info.StrictProofs, qt.IsTrue)
	c.Assert(info.Authority, qt.Equals, e.signer.Address())
	c.Assert(info.EncryptionKey, qt.DeepEquals, types.HexBytes(e.scheme.PublicKey().Marshal()))

	poll := e.createActivePoll("yes", "no")
	c.Assert(poll.ID, qt.Equals, types.PollID(0))
	c.Assert(poll.Status, qt.Equals, types.PollStatusActiveName)

	list, err := e.cli.Polls()
	c.Assert(err, qt.IsNil)
	c.Assert(list.Total, qt.Equals, uint64(1))

	alice := newVoter(c, "alice")
	bob := newVoter(c, "bob")
	carol := newVoter(c, "carol")
	for voter, choice := range map[*ethereum.Signer]uint64{alice: 1, bob: 0, carol: 1} {
		resp, err := e.cli.Vote(e.voteEnvelope(poll.ID, voter, choice))
		c.Assert(err, qt.IsNil)
		c.Assert(resp.Voter, qt.Equals, voter.Address())
	}

	tallies, err := e.cli.Tallies(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(tallies.Tallies, qt.HasLen, 2)
	c.Assert(tallies.VoteCount.String(), qt.Equals, "3")
	c.Assert(tallies.Finalized, qt.IsFalse)

	// Finalizing while the window is open is rejected.
	_, err = e.cli.Finalize(poll.ID)
	var apiErr *APIError
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Code, qt.Equals, api.ErrPollStillActive.Code)

	e.clock.Advance(2 * time.Hour)
	finalized, err := e.cli.Finalize(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(finalized.Finalized, qt.IsTrue)
	c.Assert(finalized.Status, qt.Equals, types.PollStatusFinalizedName)

	// Publish with the authority attestation and read the results back.
	clear, proof := e.attestation(poll.ID)
	c.Assert(clear, qt.DeepEquals, []uint64{1, 2})
	published, err := e.cli.PublishResults(poll.ID, clear, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(published.Published, qt.IsTrue)
	c.Assert(published.Results[0].String(), qt.Equals, "1")
	c.Assert(published.Results[1].String(), qt.Equals, "2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := e.cli.WaitUntilPublished(ctx, poll.ID, 50*time.Millisecond)
	c.Assert(err, qt.IsNil)
	c.Assert(results.Published, qt.IsTrue)

	// The participation record proves the vote without revealing it.
	record, err := e.cli.Participant(poll.ID, alice.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(record.Voted, qt.IsTrue)
	c.Assert(record.Receipt, qt.IsNotNil)
	c.Assert(participation.VerifyReceipt(record.Receipt), qt.IsTrue)
}

func TestClientErrors(t *testing.T) {
	e := newTestNode(t, "0.1.0")
	c := e.c

	_, err := e.cli.Poll(types.PollID(99))
	var apiErr *APIError
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.HTTPstatus, qt.Equals, http.StatusNotFound)
	c.Assert(apiErr.Code, qt.Equals, api.ErrPollNotFound.Code)
	c.Assert(apiErr.Error(), qt.Contains, api.ErrPollNotFound.Err.Error())

	_, err = e.cli.WaitUntilPublished(context.Background(), types.PollID(99), 50*time.Millisecond)
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Code, qt.Equals, api.ErrPollNotFound.Code)

	poll := e.createActivePoll()
	voter := newVoter(c, "mismatched voter")
	envelope := e.voteEnvelope(poll.ID, voter, 1)
	envelope.PollID = types.PollID(42) // poll 42 does not exist
	_, err = e.cli.Vote(envelope)
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Code, qt.Equals, api.ErrPollNotFound.Code)
}

func TestClientVersionCheck(t *testing.T) {
	t.Run("development build", func(t *testing.T) {
		e := newTestNode(t, "dev")
		e.c.Assert(e.cli.CheckVersion(), qt.IsNil)
	})
	t.Run("incompatible major", func(t *testing.T) {
		e := newTestNode(t, "9.9.9")
		err := e.cli.CheckVersion()
		e.c.Assert(err, qt.IsNotNil)
		e.c.Assert(err.Error(), qt.Contains, "not compatible")
	})
}

func TestClientMetadata(t *testing.T) {
	e := newTestNode(t, "0.1.0")
	c := e.c

	doc := &types.Metadata{
		Title:   types.MultilingualString{"default": "metadata over the wire"},
		Version: "1.0",
	}
	stored, err := e.cli.SetMetadata(doc)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.HasPrefix(stored.URI, "ipfs://"), qt.IsTrue)

	// Both reference forms resolve to the same document.
	byURI, err := e.cli.Metadata(stored.URI)
	c.Assert(err, qt.IsNil)
	c.Assert(byURI.Title["default"], qt.Equals, "metadata over the wire")

	byCID, err := e.cli.Metadata(strings.TrimPrefix(stored.URI, "ipfs://"))
	c.Assert(err, qt.IsNil)
	c.Assert(byCID.Title["default"], qt.Equals, "metadata over the wire")

	_, err = e.cli.Metadata("@@not-a-cid@@")
	var apiErr *APIError
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Code, qt.Equals, api.ErrMalformedMetadataHash.Code)
}
