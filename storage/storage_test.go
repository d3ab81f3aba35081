package storage

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/sealedvote/sealedvote-node/types"
)

func TestVotedMarkers(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	pollID := types.PollID(0)
	voter := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")

	// Scenario: nobody voted yet
	c.Assert(st.HasVoted(pollID, voter), qt.IsFalse)

	c.Assert(st.MarkVoted(pollID, voter), qt.IsNil)
	c.Assert(st.HasVoted(pollID, voter), qt.IsTrue)
	c.Assert(st.HasVoted(pollID, other), qt.IsFalse)

	// Markers are append-only, a second mark must be rejected
	c.Assert(st.MarkVoted(pollID, voter), qt.Equals, ErrKeyAlreadyExists)

	// The same voter can participate in a different poll
	c.Assert(st.HasVoted(types.PollID(1), voter), qt.IsFalse)
	c.Assert(st.MarkVoted(types.PollID(1), voter), qt.IsNil)
}

func TestVoters(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	voters := []common.Address{
		common.HexToAddress("0x0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a"),
		common.HexToAddress("0x0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b"),
		common.HexToAddress("0x0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c"),
	}
	for _, v := range voters {
		c.Assert(st.MarkVoted(types.PollID(3), v), qt.IsNil)
	}
	// A voter in another poll must not leak into the listing
	c.Assert(st.MarkVoted(types.PollID(4), voters[0]), qt.IsNil)

	got, err := st.Voters(types.PollID(3))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, voters)

	empty, err := st.Voters(types.PollID(99))
	c.Assert(err, qt.IsNil)
	c.Assert(empty, qt.HasLen, 0)
}

func TestCommitVote(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	id, err := st.NewPoll(createTestPoll("atomic votes"))
	c.Assert(err, qt.IsNil)
	voter := common.HexToAddress("0x3333333333333333333333333333333333333333")

	newTallies := []types.HexBytes{
		bytes.Repeat([]byte{5}, 32),
		bytes.Repeat([]byte{6}, 32),
	}
	c.Assert(st.CommitVote(id, voter, newTallies), qt.IsNil)

	poll, err := st.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(poll.Tallies, qt.DeepEquals, newTallies)
	c.Assert(poll.VoteCount.String(), qt.Equals, "1")
	c.Assert(st.HasVoted(id, voter), qt.IsTrue)

	// A second commit from the same voter must be rejected and leave the
	// tallies untouched
	err = st.CommitVote(id, voter, []types.HexBytes{
		bytes.Repeat([]byte{7}, 32),
		bytes.Repeat([]byte{8}, 32),
	})
	c.Assert(err, qt.Equals, ErrKeyAlreadyExists)

	poll, err = st.Poll(id)
	c.Assert(err, qt.IsNil)
	c.Assert(poll.Tallies, qt.DeepEquals, newTallies)
	c.Assert(poll.VoteCount.String(), qt.Equals, "1")

	// Unknown poll
	err = st.CommitVote(types.PollID(55), voter, newTallies)
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestAttestations(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	pollID := types.PollID(7)
	c.Assert(st.HasAttestation(pollID), qt.IsFalse)
	_, err := st.Attestation(pollID)
	c.Assert(err, qt.Equals, ErrNotFound)

	att := &types.ResultsAttestation{
		PollID: pollID,
		Tallies: []types.HexBytes{
			bytes.Repeat([]byte{1}, 32),
			bytes.Repeat([]byte{2}, 32),
		},
		Results:   []*types.BigInt{types.NewInt(5), types.NewInt(3)},
		Signature: bytes.Repeat([]byte{9}, 65),
	}
	c.Assert(st.SetAttestation(att), qt.IsNil)
	c.Assert(st.HasAttestation(pollID), qt.IsTrue)

	stored, err := st.Attestation(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.PollID, qt.Equals, pollID)
	c.Assert(stored.Tallies, qt.DeepEquals, att.Tallies)
	c.Assert(stored.Results[0].String(), qt.Equals, "5")
	c.Assert(stored.Results[1].String(), qt.Equals, "3")
	c.Assert(stored.Signature, qt.DeepEquals, att.Signature)

	// Regenerating overwrites the previous attestation
	att.Signature = bytes.Repeat([]byte{8}, 65)
	c.Assert(st.SetAttestation(att), qt.IsNil)
	stored, err = st.Attestation(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Signature, qt.DeepEquals, att.Signature)

	c.Assert(st.SetAttestation(nil), qt.IsNotNil)
}

func TestFHEDatabaseIsolation(t *testing.T) {
	c := qt.New(t)
	st := newTestStorage(t)

	// Writes through the scheme namespace must not collide with poll keys
	wTx := st.FHEDatabase().WriteTx()
	c.Assert(wTx.Set([]byte("p/collision"), []byte("scheme data")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err := st.FHEDatabase().Get([]byte("p/collision"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte("scheme data"))

	ids, err := st.ListPolls()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.HasLen, 0)
}
