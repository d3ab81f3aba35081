package storage

import (
	"github.com/sealedvote/sealedvote-node/types"
)

// Common update functions for use with UpdatePoll

// PollUpdateCallbackVote returns a function that replaces the encrypted tally
// handles after a vote has been folded in and increments the vote count.
func PollUpdateCallbackVote(tallies []types.HexBytes) func(*types.Poll) error {
	return func(p *types.Poll) error {
		p.Tallies = tallies
		if p.VoteCount == nil {
			p.VoteCount = new(types.BigInt).SetUint64(0)
		}
		p.VoteCount = new(types.BigInt).Add(p.VoteCount, types.NewInt(1))
		return nil
	}
}

// PollUpdateCallbackFinalize returns a function that marks a poll as
// finalized. The tally handles stay as they are; finalization only flips the
// one-way flag.
func PollUpdateCallbackFinalize() func(*types.Poll) error {
	return func(p *types.Poll) error {
		p.Finalized = true
		return nil
	}
}

// PollUpdateCallbackPublishResults returns a function that stores the clear
// results and marks them as published.
func PollUpdateCallbackPublishResults(results []*types.BigInt) func(*types.Poll) error {
	return func(p *types.Poll) error {
		p.Results = results
		p.ResultsPublished = true
		return nil
	}
}

// PollUpdateCallbackSetMetadataURI returns a function that sets the metadata
// reference of a poll.
func PollUpdateCallbackSetMetadataURI(uri string) func(*types.Poll) error {
	return func(p *types.Poll) error {
		p.MetadataURI = uri
		return nil
	}
}
