package participation

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/types"
)

func testVoter(i byte) common.Address {
	var b [20]byte
	for j := range b {
		b[j] = i
	}
	return common.BytesToAddress(b[:])
}

func TestParticipationAddAndProof(t *testing.T) {
	c := qt.New(t)

	pdb, err := New(t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(pdb.Close(), qt.IsNil) }()

	pollID := types.PollID(1)

	c.Run("empty tree", func(c *qt.C) {
		root, err := pdb.Root(pollID)
		c.Assert(err, qt.IsNil)
		c.Assert(root, qt.IsNil)

		size, err := pdb.Size(pollID)
		c.Assert(err, qt.IsNil)
		c.Assert(size, qt.Equals, 0)
	})

	voters := []common.Address{testVoter(1), testVoter(2), testVoter(3)}
	for _, v := range voters {
		c.Assert(pdb.Add(pollID, v), qt.IsNil)
	}

	size, err := pdb.Size(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, len(voters))

	root, err := pdb.Root(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(len(root) > 0, qt.IsTrue)

	c.Run("receipts verify", func(c *qt.C) {
		for _, v := range voters {
			receipt, err := pdb.GenProof(pollID, v)
			c.Assert(err, qt.IsNil)
			c.Assert(receipt.PollID, qt.Equals, pollID)
			c.Assert(receipt.Address, qt.DeepEquals, types.HexBytes(v.Bytes()))
			c.Assert(VerifyReceipt(receipt), qt.IsTrue)
		}
	})

	c.Run("unknown voter", func(c *qt.C) {
		_, err := pdb.GenProof(pollID, testVoter(99))
		c.Assert(err, qt.IsNotNil)
	})
}

func TestParticipationReceiptTampering(t *testing.T) {
	c := qt.New(t)

	pdb, err := New(t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(pdb.Close(), qt.IsNil) }()

	pollID := types.PollID(7)
	c.Assert(pdb.Add(pollID, testVoter(1)), qt.IsNil)
	c.Assert(pdb.Add(pollID, testVoter(2)), qt.IsNil)

	receipt, err := pdb.GenProof(pollID, testVoter(1))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyReceipt(receipt), qt.IsTrue)

	c.Run("nil receipt", func(c *qt.C) {
		c.Assert(VerifyReceipt(nil), qt.IsFalse)
	})

	c.Run("tampered root", func(c *qt.C) {
		bad := *receipt
		bad.Root = append(types.HexBytes{}, receipt.Root...)
		bad.Root[0] ^= 0xFF
		c.Assert(VerifyReceipt(&bad), qt.IsFalse)
	})

	c.Run("claimed address mismatch", func(c *qt.C) {
		bad := *receipt
		bad.Address = testVoter(2).Bytes()
		c.Assert(VerifyReceipt(&bad), qt.IsFalse)
	})

	c.Run("tampered index", func(c *qt.C) {
		bad := *receipt
		bad.Index++
		c.Assert(VerifyReceipt(&bad), qt.IsFalse)
	})
}

func TestParticipationReceiptSurvivesGrowth(t *testing.T) {
	c := qt.New(t)

	pdb, err := New(t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(pdb.Close(), qt.IsNil) }()

	pollID := types.PollID(3)
	c.Assert(pdb.Add(pollID, testVoter(1)), qt.IsNil)

	early, err := pdb.GenProof(pollID, testVoter(1))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyReceipt(early), qt.IsTrue)

	// receipts carry their own root, so later insertions must not break them
	c.Assert(pdb.Add(pollID, testVoter(2)), qt.IsNil)
	c.Assert(pdb.Add(pollID, testVoter(3)), qt.IsNil)
	c.Assert(VerifyReceipt(early), qt.IsTrue)

	late, err := pdb.GenProof(pollID, testVoter(1))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyReceipt(late), qt.IsTrue)
	c.Assert(late.Root, qt.Not(qt.DeepEquals), early.Root)
}

func TestParticipationPollIsolation(t *testing.T) {
	c := qt.New(t)

	pdb, err := New(t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(pdb.Close(), qt.IsNil) }()

	c.Assert(pdb.Add(types.PollID(1), testVoter(1)), qt.IsNil)
	c.Assert(pdb.Add(types.PollID(1), testVoter(2)), qt.IsNil)
	c.Assert(pdb.Add(types.PollID(2), testVoter(3)), qt.IsNil)

	size1, err := pdb.Size(types.PollID(1))
	c.Assert(err, qt.IsNil)
	c.Assert(size1, qt.Equals, 2)

	size2, err := pdb.Size(types.PollID(2))
	c.Assert(err, qt.IsNil)
	c.Assert(size2, qt.Equals, 1)

	root1, err := pdb.Root(types.PollID(1))
	c.Assert(err, qt.IsNil)
	root2, err := pdb.Root(types.PollID(2))
	c.Assert(err, qt.IsNil)
	c.Assert(root1, qt.Not(qt.DeepEquals), root2)

	// a voter from poll 1 has no receipt in poll 2
	_, err = pdb.GenProof(types.PollID(2), testVoter(1))
	c.Assert(err, qt.IsNotNil)
}

func TestParticipationPersistence(t *testing.T) {
	c := qt.New(t)
	dataDir := t.TempDir()
	pollID := types.PollID(5)

	pdb, err := New(dataDir)
	c.Assert(err, qt.IsNil)
	c.Assert(pdb.Add(pollID, testVoter(1)), qt.IsNil)
	c.Assert(pdb.Add(pollID, testVoter(2)), qt.IsNil)

	rootBefore, err := pdb.Root(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(pdb.Close(), qt.IsNil)

	reopened, err := New(dataDir)
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(reopened.Close(), qt.IsNil) }()

	size, err := reopened.Size(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, 2)

	rootAfter, err := reopened.Root(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(rootAfter, qt.DeepEquals, rootBefore)

	receipt, err := reopened.GenProof(pollID, testVoter(2))
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyReceipt(receipt), qt.IsTrue)
}

func TestParticipationRebuild(t *testing.T) {
	c := qt.New(t)

	pdb, err := New(t.TempDir())
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(pdb.Close(), qt.IsNil) }()

	pollID := types.PollID(9)
	voters := []common.Address{testVoter(1), testVoter(2), testVoter(3), testVoter(4)}
	c.Assert(pdb.Rebuild(pollID, voters), qt.IsNil)

	size, err := pdb.Size(pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, len(voters))

	for _, v := range voters {
		receipt, err := pdb.GenProof(pollID, v)
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyReceipt(receipt), qt.IsTrue)
	}

	c.Run("refuses non-empty tree", func(c *qt.C) {
		err := pdb.Rebuild(pollID, voters)
		c.Assert(err, qt.IsNotNil)
	})
}
