package storage

import (
	"fmt"

	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
	"github.com/sealedvote/sealedvote-node/types"
)

// NewPoll persists a freshly created poll and allocates its identifier. Poll
// identifiers are dense and sequential: the first poll gets 0, each following
// poll gets the previous one plus one. The identifier allocation and the poll
// write commit in a single transaction so identifiers never repeat and never
// leave gaps, even across crashes.
func (s *Storage) NewPoll(poll *types.Poll) (types.PollID, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if poll == nil {
		return 0, fmt.Errorf("nil poll")
	}

	tx := s.db.WriteTx()
	defer tx.Discard()

	metaTx := prefixeddb.NewPrefixedWriteTx(tx, pollMetaPrefix)
	next := types.PollID(0)
	if raw, err := metaTx.Get(nextPollIDKey); err == nil {
		next = types.PollIDFromBytes(raw)
	}
	poll.ID = next

	data, err := EncodeArtifact(poll)
	if err != nil {
		return 0, fmt.Errorf("encode poll: %w", err)
	}
	pollTx := prefixeddb.NewPrefixedWriteTx(tx, pollPrefix)
	if err := pollTx.Set(next.Bytes(), data); err != nil {
		return 0, fmt.Errorf("store poll: %w", err)
	}
	if err := metaTx.Set(nextPollIDKey, (next + 1).Bytes()); err != nil {
		return 0, fmt.Errorf("advance poll counter: %w", err)
	}
	return next, tx.Commit()
}

// Poll retrieves a poll from the storage. Returns ErrNotFound if no poll
// exists with the given identifier.
func (s *Storage) Poll(id types.PollID) (*types.Poll, error) {
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, id.Bytes(), p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePoll updates the poll atomically by reading the current state,
// applying the update functions in order and writing the result back, all
// under the storage lock.
func (s *Storage) UpdatePoll(id types.PollID, updateFunc ...func(*types.Poll) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	// Read current state
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, id.Bytes(), p); err != nil {
		return fmt.Errorf("failed to get poll for update: %w", err)
	}

	// Apply the update functions, each of which can modify the poll state
	for _, f := range updateFunc {
		if err := f(p); err != nil {
			return fmt.Errorf("update function failed: %w", err)
		}
	}

	// Write back atomically
	if err := s.setArtifact(pollPrefix, id.Bytes(), p); err != nil {
		return fmt.Errorf("failed to save updated poll: %w", err)
	}

	return nil
}

// ListPolls returns the identifiers of all stored polls in ascending order.
// The order falls out of the key encoding: fixed-width big-endian identifiers
// iterate lexicographically, which matches numeric order.
func (s *Storage) ListPolls() ([]types.PollID, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	keys, err := s.listArtifacts(pollPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]types.PollID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.PollIDFromBytes(k))
	}
	return ids, nil
}

// TotalPolls returns the number of polls ever created. With dense sequential
// identifiers this equals the next identifier to be allocated.
func (s *Storage) TotalPolls() (uint64, error) {
	raw, err := prefixeddb.NewPrefixedReader(s.db, pollMetaPrefix).Get(nextPollIDKey)
	if err != nil {
		return 0, nil
	}
	return uint64(types.PollIDFromBytes(raw)), nil
}
