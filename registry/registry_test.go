package registry

import (
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/crypto/elgamal"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/metadb"
	"github.com/sealedvote/sealedvote-node/fhe/localfhe"
	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

// testClock is an injectable clock so window guards can be tested without
// sleeping.
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

func (tc *testClock) Set(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = t
}

type testEnv struct {
	c         *qt.C
	reg       *Registry
	scheme    *localfhe.LocalScheme
	stg       *storage.Storage
	clock     *testClock
	authority *ethereum.Signer
}

func newTestEnv(t *testing.T, strictProofs bool) *testEnv {
	c := qt.New(t)

	database, err := metadb.New(db.TypePebble, filepath.Join(t.TempDir(), "db"))
	c.Assert(err, qt.IsNil)
	stg := storage.New(database)
	t.Cleanup(stg.Close)

	authority, err := ethereum.NewSignerFromSeed([]byte("registry test authority"))
	c.Assert(err, qt.IsNil)

	scheme, err := localfhe.New(stg.FHEDatabase(), localfhe.Config{
		Authority: authority.Address(),
	})
	c.Assert(err, qt.IsNil)

	part, err := participation.New(filepath.Join(t.TempDir(), "participation"))
	c.Assert(err, qt.IsNil)
	t.Cleanup(func() { _ = part.Close() })

	clock := newTestClock()
	reg := New(stg, scheme, part, Config{
		StrictProofs: strictProofs,
		TimeFunc:     clock.Now,
	})
	return &testEnv{
		c:         c,
		reg:       reg,
		scheme:    scheme,
		stg:       stg,
		clock:     clock,
		authority: authority,
	}
}

// createActivePoll creates a poll whose window opened at the current fake
// time and lasts one hour.
func (e *testEnv) createActivePoll(options ...string) *types.Poll {
	if len(options) == 0 {
		options = []string{"yes", "no"}
	}
	now := e.clock.Now()
	poll, err := e.reg.CreatePoll("test poll", options, now, now.Add(time.Hour))
	e.c.Assert(err, qt.IsNil)
	return poll
}

// castVote encrypts the choice under the scheme public key, wraps it in a
// signed envelope and submits it.
func (e *testEnv) castVote(pollID types.PollID, signer *ethereum.Signer, choice uint64) error {
	ct, err := elgamal.NewCiphertext(e.scheme.PublicKey()).
		Encrypt(new(big.Int).SetUint64(choice), e.scheme.PublicKey(), nil)
	e.c.Assert(err, qt.IsNil)

	envelope := &types.VoteEnvelope{
		PollID:     pollID,
		Ciphertext: ct.Serialize(),
	}
	sig, err := signer.Sign(envelope.SignableBytes())
	e.c.Assert(err, qt.IsNil)
	envelope.Signature = sig.Bytes()

	voter, err := e.reg.Vote(envelope)
	if err != nil {
		return err
	}
	e.c.Assert(voter, qt.Equals, signer.Address())
	return nil
}

// decryptTallies opens the capability boundary for assertions: the poll must
// be finalized so the handles are released by the scheme.
func (e *testEnv) decryptTallies(pollID types.PollID) []uint64 {
	poll, err := e.reg.Poll(pollID)
	e.c.Assert(err, qt.IsNil)

	pub, priv := e.scheme.KeyPair()
	out := make([]uint64, len(poll.Tallies))
	for i, h := range poll.Tallies {
		ct, err := e.scheme.DecryptableCiphertext(h)
		e.c.Assert(err, qt.IsNil)
		_, msg, err := elgamal.Decrypt(pub, priv, ct.C1, ct.C2, e.scheme.MaxMessage())
		e.c.Assert(err, qt.IsNil)
		out[i] = msg.Uint64()
	}
	return out
}

// buildAttestation produces what the decryption authority would: a signed
// statement binding the poll tallies to the claimed results.
func (e *testEnv) buildAttestation(pollID types.PollID, results []uint64) []byte {
	poll, err := e.reg.Poll(pollID)
	e.c.Assert(err, qt.IsNil)

	att := &types.ResultsAttestation{
		PollID:  pollID,
		Tallies: poll.Tallies,
		Results: make([]*types.BigInt, len(results)),
	}
	for i, v := range results {
		att.Results[i] = new(types.BigInt).SetUint64(v)
	}
	sig, err := e.authority.Sign(att.SignableBytes())
	e.c.Assert(err, qt.IsNil)
	att.Signature = sig.Bytes()

	proof, err := cbor.Marshal(att)
	e.c.Assert(err, qt.IsNil)
	return proof
}

func newVoter(c *qt.C, seed string) *ethereum.Signer {
	signer, err := ethereum.NewSignerFromSeed([]byte(seed))
	c.Assert(err, qt.IsNil)
	return signer
}

func TestCreatePollValidation(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	now := e.clock.Now()

	c.Run("empty name", func(c *qt.C) {
		_, err := e.reg.CreatePoll("", []string{"a", "b"}, now, now.Add(time.Hour))
		c.Assert(err, qt.ErrorIs, ErrEmptyName)
	})

	c.Run("option count bounds", func(c *qt.C) {
		_, err := e.reg.CreatePoll("p", []string{"only"}, now, now.Add(time.Hour))
		c.Assert(err, qt.ErrorIs, ErrInvalidOptionCount)

		_, err = e.reg.CreatePoll("p", []string{"a", "b", "c", "d", "e"}, now, now.Add(time.Hour))
		c.Assert(err, qt.ErrorIs, ErrInvalidOptionCount)

		_, err = e.reg.CreatePoll("p", []string{"a", ""}, now, now.Add(time.Hour))
		c.Assert(err, qt.ErrorIs, ErrInvalidOptionCount)
	})

	c.Run("schedule bounds", func(c *qt.C) {
		_, err := e.reg.CreatePoll("p", []string{"a", "b"}, now.Add(time.Hour), now.Add(time.Minute))
		c.Assert(err, qt.ErrorIs, ErrInvalidSchedule)

		_, err = e.reg.CreatePoll("p", []string{"a", "b"}, now, now)
		c.Assert(err, qt.ErrorIs, ErrInvalidSchedule)

		_, err = e.reg.CreatePoll("p", []string{"a", "b"}, now.Add(-2*time.Hour), now.Add(-time.Hour))
		c.Assert(err, qt.ErrorIs, ErrInvalidSchedule)
	})

	c.Run("valid poll", func(c *qt.C) {
		poll, err := e.reg.CreatePoll("valid", []string{"a", "b", "c"}, now, now.Add(time.Hour))
		c.Assert(err, qt.IsNil)
		c.Assert(poll.ID, qt.Equals, types.PollID(0))
		c.Assert(poll.Tallies, qt.HasLen, 3)
		for _, h := range poll.Tallies {
			c.Assert(len(h), qt.Equals, 32)
		}
		c.Assert(poll.Status(now), qt.Equals, types.PollStatusActive)
		c.Assert(poll.Finalized, qt.IsFalse)
		c.Assert(poll.ResultsPublished, qt.IsFalse)
	})

	c.Run("failed creations do not consume identifiers", func(c *qt.C) {
		poll, err := e.reg.CreatePoll("second", []string{"a", "b"}, now, now.Add(time.Hour))
		c.Assert(err, qt.IsNil)
		c.Assert(poll.ID, qt.Equals, types.PollID(1))

		total, err := e.reg.TotalPolls()
		c.Assert(err, qt.IsNil)
		c.Assert(total, qt.Equals, uint64(2))
	})
}

func TestVoteWindowEnforcement(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	now := e.clock.Now()

	// Window opens in ten minutes and lasts one hour
	poll, err := e.reg.CreatePoll("windowed", []string{"a", "b"}, now.Add(10*time.Minute), now.Add(70*time.Minute))
	c.Assert(err, qt.IsNil)

	voter := newVoter(c, "window voter")

	// Before the window: scheduled
	c.Assert(e.castVote(poll.ID, voter, 0), qt.ErrorIs, ErrPollNotActive)

	// The start bound is inclusive
	e.clock.Advance(10 * time.Minute)
	c.Assert(e.castVote(poll.ID, voter, 0), qt.IsNil)

	// The end bound is exclusive
	e.clock.Set(poll.EndTime)
	c.Assert(e.castVote(poll.ID, newVoter(c, "late voter"), 0), qt.ErrorIs, ErrPollNotActive)
}

func TestVoteValidation(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()

	c.Run("nil and empty envelopes", func(c *qt.C) {
		_, err := e.reg.Vote(nil)
		c.Assert(err, qt.ErrorIs, ErrInvalidVote)

		_, err = e.reg.Vote(&types.VoteEnvelope{PollID: poll.ID})
		c.Assert(err, qt.ErrorIs, ErrInvalidVote)
	})

	c.Run("malformed signature", func(c *qt.C) {
		_, err := e.reg.Vote(&types.VoteEnvelope{
			PollID:     poll.ID,
			Ciphertext: []byte{1, 2, 3},
			Signature:  []byte{4, 5, 6},
		})
		c.Assert(err, qt.ErrorIs, ErrInvalidVote)
	})

	c.Run("unknown poll", func(c *qt.C) {
		err := e.castVote(types.PollID(99), newVoter(c, "lost voter"), 0)
		c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	})

	c.Run("undecodable ciphertext", func(c *qt.C) {
		envelope := &types.VoteEnvelope{
			PollID:     poll.ID,
			Ciphertext: []byte("not an elgamal ciphertext"),
		}
		sig, err := newVoter(c, "garbled voter").Sign(envelope.SignableBytes())
		c.Assert(err, qt.IsNil)
		envelope.Signature = sig.Bytes()

		_, err = e.reg.Vote(envelope)
		c.Assert(err, qt.ErrorIs, ErrInvalidVote)
	})
}

func TestDoubleVoteRejected(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()

	voter := newVoter(c, "eager voter")
	c.Assert(e.castVote(poll.ID, voter, 0), qt.IsNil)
	c.Assert(e.reg.HasAddressVoted(poll.ID, voter.Address()), qt.IsTrue)

	// Same address again, even with a different choice
	c.Assert(e.castVote(poll.ID, voter, 1), qt.ErrorIs, ErrAddressAlreadyVoted)

	// A different address is fine
	c.Assert(e.castVote(poll.ID, newVoter(c, "other voter"), 1), qt.IsNil)

	stored, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.VoteCount.String(), qt.Equals, "2")

	// The same address may vote in a different poll
	other := e.createActivePoll()
	c.Assert(e.castVote(other.ID, voter, 0), qt.IsNil)
}

func TestTallyCorrectnessEndToEnd(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c

	c.Run("split vote", func(c *qt.C) {
		poll := e.createActivePoll("yes", "no")
		c.Assert(e.castVote(poll.ID, newVoter(c, "split 1"), 0), qt.IsNil)
		c.Assert(e.castVote(poll.ID, newVoter(c, "split 2"), 1), qt.IsNil)

		e.clock.Advance(2 * time.Hour)
		c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)
		c.Assert(e.decryptTallies(poll.ID), qt.DeepEquals, []uint64{1, 1})
	})

	c.Run("unanimous vote", func(c *qt.C) {
		poll := e.createActivePoll("yes", "no")
		c.Assert(e.castVote(poll.ID, newVoter(c, "unanimous 1"), 0), qt.IsNil)
		c.Assert(e.castVote(poll.ID, newVoter(c, "unanimous 2"), 0), qt.IsNil)

		e.clock.Advance(2 * time.Hour)
		c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)
		c.Assert(e.decryptTallies(poll.ID), qt.DeepEquals, []uint64{2, 0})
	})

	c.Run("three options and an out-of-range ballot", func(c *qt.C) {
		poll := e.createActivePoll("red", "green", "blue")
		c.Assert(e.castVote(poll.ID, newVoter(c, "rgb 1"), 0), qt.IsNil)
		c.Assert(e.castVote(poll.ID, newVoter(c, "rgb 2"), 0), qt.IsNil)
		c.Assert(e.castVote(poll.ID, newVoter(c, "rgb 3"), 1), qt.IsNil)
		// A choice outside the option range is counted as participation but
		// contributes zero to every accumulator
		c.Assert(e.castVote(poll.ID, newVoter(c, "rgb rogue"), 7), qt.IsNil)

		e.clock.Advance(2 * time.Hour)
		c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)
		c.Assert(e.decryptTallies(poll.ID), qt.DeepEquals, []uint64{2, 1, 0})

		stored, err := e.reg.Poll(poll.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(stored.VoteCount.String(), qt.Equals, "4")
	})
}

func TestFinalizeGuards(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()

	c.Assert(e.reg.FinalizePoll(types.PollID(42)), qt.ErrorIs, ErrPollNotFound)
	c.Assert(e.reg.FinalizePoll(poll.ID), qt.ErrorIs, ErrPollStillActive)

	e.clock.Advance(2 * time.Hour)
	c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)

	stored, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Finalized, qt.IsTrue)
	c.Assert(stored.Status(e.clock.Now()), qt.Equals, types.PollStatusFinalized)

	// Finalization is one-way and one-shot
	c.Assert(e.reg.FinalizePoll(poll.ID), qt.ErrorIs, ErrPollAlreadyFinalized)
}

func TestPublishGuards(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()
	c.Assert(e.castVote(poll.ID, newVoter(c, "publish voter"), 0), qt.IsNil)

	c.Assert(e.reg.PublishResults(types.PollID(42), []uint64{1, 0}, nil), qt.ErrorIs, ErrPollNotFound)
	c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, nil), qt.ErrorIs, ErrPollNotFinalized)

	e.clock.Advance(2 * time.Hour)
	c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)

	c.Assert(e.reg.PublishResults(poll.ID, []uint64{1}, nil), qt.ErrorIs, ErrInvalidResultsLength)
	c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0, 0}, nil), qt.ErrorIs, ErrInvalidResultsLength)

	// Lax profile with an empty proof skips verification
	c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, nil), qt.IsNil)

	results, err := e.reg.PublicResults(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 2)
	c.Assert(results[0].String(), qt.Equals, "1")
	c.Assert(results[1].String(), qt.Equals, "0")

	stored, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status(e.clock.Now()), qt.Equals, types.PollStatusPublished)

	// Results are written exactly once
	c.Assert(e.reg.PublishResults(poll.ID, []uint64{0, 1}, nil), qt.ErrorIs, ErrPollAlreadyPublished)
	results, err = e.reg.PublicResults(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(results[0].String(), qt.Equals, "1")
}

func TestPublishProofVerification(t *testing.T) {
	c := qt.New(t)

	c.Run("strict profile requires a valid attestation", func(c *qt.C) {
		e := newTestEnv(t, true)
		poll := e.createActivePoll()
		c.Assert(e.castVote(poll.ID, newVoter(c, "strict voter"), 0), qt.IsNil)
		e.clock.Advance(2 * time.Hour)
		c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)

		// Empty and junk proofs are rejected, nothing is published
		c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, nil), qt.ErrorIs, ErrInvalidResultsProof)
		c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, []byte("junk")), qt.ErrorIs, ErrInvalidResultsProof)

		// An attestation over different results does not transfer
		wrong := e.buildAttestation(poll.ID, []uint64{0, 1})
		c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, wrong), qt.ErrorIs, ErrInvalidResultsProof)

		proof := e.buildAttestation(poll.ID, []uint64{1, 0})
		c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, proof), qt.IsNil)
	})

	c.Run("lax profile still verifies a present proof", func(c *qt.C) {
		e := newTestEnv(t, false)
		poll := e.createActivePoll()
		e.clock.Advance(2 * time.Hour)
		c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)

		c.Assert(e.reg.PublishResults(poll.ID, []uint64{0, 0}, []byte("junk")), qt.ErrorIs, ErrInvalidResultsProof)

		proof := e.buildAttestation(poll.ID, []uint64{0, 0})
		c.Assert(e.reg.PublishResults(poll.ID, []uint64{0, 0}, proof), qt.IsNil)
	})
}

func TestReadsAreIdempotent(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()
	c.Assert(e.castVote(poll.ID, newVoter(c, "read voter"), 1), qt.IsNil)

	first, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	second, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(second.Tallies, qt.DeepEquals, first.Tallies)
	c.Assert(second.VoteCount.String(), qt.Equals, first.VoteCount.String())

	tallies1, err := e.reg.EncryptedTallies(poll.ID)
	c.Assert(err, qt.IsNil)
	tallies2, err := e.reg.EncryptedTallies(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(tallies2, qt.DeepEquals, tallies1)

	// Results are empty until published
	results, err := e.reg.PublicResults(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(results, qt.HasLen, 0)

	_, err = e.reg.EncryptedTallies(types.PollID(9))
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	_, err = e.reg.PublicResults(types.PollID(9))
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
	c.Assert(e.reg.HasAddressVoted(types.PollID(9), newVoter(c, "x").Address()), qt.IsFalse)
}

func TestVoteReceipts(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()

	voter := newVoter(c, "receipt voter")
	c.Assert(e.castVote(poll.ID, voter, 0), qt.IsNil)

	receipt, err := e.reg.VoteReceipt(poll.ID, voter.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.PollID, qt.Equals, poll.ID)
	c.Assert(participation.VerifyReceipt(receipt), qt.IsTrue)

	_, err = e.reg.VoteReceipt(poll.ID, newVoter(c, "no receipt").Address())
	c.Assert(err, qt.IsNotNil)

	_, err = e.reg.VoteReceipt(types.PollID(33), voter.Address())
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
}

func TestPollMetadata(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c
	poll := e.createActivePoll()

	doc := &types.Metadata{
		Title:   types.MultilingualString{"default": "a described poll"},
		Version: "1.0",
	}
	uri, err := e.reg.SetPollMetadata(poll.ID, doc)
	c.Assert(err, qt.IsNil)
	c.Assert(uri, qt.Contains, "ipfs://")

	stored, err := e.reg.Poll(poll.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.MetadataURI, qt.Equals, uri)

	_, err = e.reg.SetPollMetadata(types.PollID(44), doc)
	c.Assert(err, qt.ErrorIs, ErrPollNotFound)
}

func TestEvents(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c

	events := e.reg.Subscribe()

	poll := e.createActivePoll()
	voter := newVoter(c, "event voter")
	c.Assert(e.castVote(poll.ID, voter, 0), qt.IsNil)
	e.clock.Advance(2 * time.Hour)
	c.Assert(e.reg.FinalizePoll(poll.ID), qt.IsNil)
	c.Assert(e.reg.PublishResults(poll.ID, []uint64{1, 0}, nil), qt.IsNil)

	created := <-events
	c.Assert(created.Type, qt.Equals, EventPollCreated)
	c.Assert(created.PollID, qt.Equals, poll.ID)
	c.Assert(created.Options, qt.DeepEquals, poll.Options)

	cast := <-events
	c.Assert(cast.Type, qt.Equals, EventVoteCast)
	c.Assert(cast.Voter, qt.Equals, voter.Address())

	finalized := <-events
	c.Assert(finalized.Type, qt.Equals, EventPollFinalized)

	published := <-events
	c.Assert(published.Type, qt.Equals, EventResultsPublished)
	c.Assert(published.Results, qt.HasLen, 2)
	c.Assert(published.Results[0].String(), qt.Equals, "1")
}

func TestEventsNeverBlock(t *testing.T) {
	e := newTestEnv(t, false)
	c := e.c

	// A subscriber that never reads must not stall the registry
	_ = e.reg.Subscribe()
	for range eventBufferSize + 5 {
		e.createActivePoll()
	}

	total, err := e.reg.TotalPolls()
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, uint64(eventBufferSize+5))
}
