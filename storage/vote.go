package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
	"github.com/sealedvote/sealedvote-node/types"
)

// votedKey builds the marker key for a voter in a poll: the fixed-width poll
// identifier followed by the 20-byte address.
func votedKey(pollID types.PollID, voter common.Address) []byte {
	key := make([]byte, 0, types.PollIDByteLength+common.AddressLength)
	key = append(key, pollID.Bytes()...)
	return append(key, voter.Bytes()...)
}

// MarkVoted records that the voter cast a ballot in the poll. The marker is
// append-only: once set it is never removed, and setting it twice returns
// ErrKeyAlreadyExists.
func (s *Storage) MarkVoted(pollID types.PollID, voter common.Address) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := prefixeddb.NewPrefixedDatabase(s.db, votedPrefix).WriteTx()
	defer wTx.Discard()

	key := votedKey(pollID, voter)
	if _, err := wTx.Get(key); err == nil {
		return ErrKeyAlreadyExists
	}
	if err := wTx.Set(key, []byte{1}); err != nil {
		return fmt.Errorf("store voted marker: %w", err)
	}
	return wTx.Commit()
}

// HasVoted reports whether the voter already cast a ballot in the poll.
func (s *Storage) HasVoted(pollID types.PollID, voter common.Address) bool {
	_, err := prefixeddb.NewPrefixedReader(s.db, votedPrefix).Get(votedKey(pollID, voter))
	return err == nil
}

// CommitVote stores the updated tally handles and the voted marker for a poll
// in a single transaction, so a crash can never leave a counted vote without
// its marker or a marked voter without a counted vote. Returns
// ErrKeyAlreadyExists if the voter already has a marker.
func (s *Storage) CommitVote(pollID types.PollID, voter common.Address, tallies []types.HexBytes) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, pollID.Bytes(), p); err != nil {
		return err
	}
	if err := PollUpdateCallbackVote(tallies)(p); err != nil {
		return err
	}
	data, err := EncodeArtifact(p)
	if err != nil {
		return fmt.Errorf("encode poll: %w", err)
	}

	tx := s.db.WriteTx()
	defer tx.Discard()

	votedTx := prefixeddb.NewPrefixedWriteTx(tx, votedPrefix)
	key := votedKey(pollID, voter)
	if _, err := votedTx.Get(key); err == nil {
		return ErrKeyAlreadyExists
	}
	if err := votedTx.Set(key, []byte{1}); err != nil {
		return fmt.Errorf("store voted marker: %w", err)
	}
	pollTx := prefixeddb.NewPrefixedWriteTx(tx, pollPrefix)
	if err := pollTx.Set(pollID.Bytes(), data); err != nil {
		return fmt.Errorf("store poll: %w", err)
	}
	return tx.Commit()
}

// Voters returns the addresses that voted in the poll, in key order. It is
// used to rebuild a lost participation tree from the authoritative markers.
func (s *Storage) Voters(pollID types.PollID) ([]common.Address, error) {
	var voters []common.Address
	err := prefixeddb.NewPrefixedReader(s.db, votedPrefix).Iterate(pollID.Bytes(), func(k, _ []byte) bool {
		// keys carry the poll identifier prefix followed by the address
		if len(k) != types.PollIDByteLength+common.AddressLength {
			return true
		}
		voters = append(voters, common.BytesToAddress(k[types.PollIDByteLength:]))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate voted markers: %w", err)
	}
	return voters, nil
}
