// Package registry implements the poll lifecycle over encrypted tallies.
//
// A poll moves through scheduled, active, closed, finalized and published
// stages. Votes arrive as externally encrypted ciphertexts and are folded
// into per-option encrypted accumulators without the registry ever branching
// on a plaintext choice: every accumulator is touched on every vote through
// encrypted compare-and-select. Clear results enter the system only through
// PublishResults, backed by the decryption authority's attestation.
//
// All cryptography goes through the injected fhe.Scheme; the registry never
// inspects handle contents.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/fhe"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

// Config tunes a Registry.
type Config struct {
	// StrictProofs requires a verifiable proof on every PublishResults call.
	// When false (local network profile only) a publish with an empty proof
	// skips verification.
	StrictProofs bool
	// TimeFunc supplies the current time for window checks. Defaults to
	// time.Now; tests inject a fake clock through it.
	TimeFunc func() time.Time
}

// Registry owns the poll state machine. All state-changing operations
// serialize on an internal lock so concurrent calls observe sequential
// semantics: guards always run against the latest committed state.
type Registry struct {
	*eventBus

	stg          *storage.Storage
	scheme       fhe.Scheme
	part         *participation.ParticipationDB
	timeFunc     func() time.Time
	strictProofs bool
	lock         sync.Mutex
}

// New creates a Registry over the given storage, encrypted arithmetic scheme
// and participation trees.
func New(stg *storage.Storage, scheme fhe.Scheme, part *participation.ParticipationDB, cfg Config) *Registry {
	timeFunc := cfg.TimeFunc
	if timeFunc == nil {
		timeFunc = time.Now
	}
	return &Registry{
		eventBus:     &eventBus{},
		stg:          stg,
		scheme:       scheme,
		part:         part,
		timeFunc:     timeFunc,
		strictProofs: cfg.StrictProofs,
	}
}

// StrictProofs reports whether publish proofs are mandatory.
func (r *Registry) StrictProofs() bool {
	return r.strictProofs
}

// Now returns the registry's view of the current time.
func (r *Registry) Now() time.Time {
	return r.timeFunc()
}

// CreatePoll validates and persists a new poll. The per-option tallies are
// initialized to fresh encrypted zeros so every poll starts from a sealed
// empty count. The identifier is assigned by the storage layer, dense and
// sequential. Returns the stored poll.
func (r *Registry) CreatePoll(name string, options []string, start, end time.Time) (*types.Poll, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if name == "" {
		return nil, ErrEmptyName
	}
	if len(options) < types.MinPollOptions || len(options) > types.MaxPollOptions {
		return nil, ErrInvalidOptionCount
	}
	for _, opt := range options {
		if opt == "" {
			return nil, ErrInvalidOptionCount
		}
	}
	now := r.timeFunc()
	if !end.After(start) || !end.After(now) {
		return nil, ErrInvalidSchedule
	}

	tallies := make([]types.HexBytes, len(options))
	for i := range options {
		zero, err := r.scheme.EncryptConstant(0)
		if err != nil {
			return nil, fmt.Errorf("could not initialize tally %d: %w", i, err)
		}
		tallies[i] = zero
	}

	poll := &types.Poll{
		Name:      name,
		Options:   options,
		StartTime: start,
		EndTime:   end,
		Tallies:   tallies,
		VoteCount: new(types.BigInt).SetUint64(0),
		CreatedAt: now,
	}
	id, err := r.stg.NewPoll(poll)
	if err != nil {
		return nil, fmt.Errorf("could not store poll: %w", err)
	}

	log.Infow("poll created",
		"pollId", id.String(),
		"name", name,
		"options", len(options),
		"startTime", start.UTC().String(),
		"endTime", end.UTC().String())
	r.publish(Event{
		Type:      EventPollCreated,
		PollID:    id,
		Name:      name,
		Options:   options,
		StartTime: start,
		EndTime:   end,
	})
	return poll, nil
}

// Vote verifies and counts a ballot. The voter identity is the address
// recovered from the envelope signature; no eligibility check beyond
// one-vote-per-address is performed. The encrypted choice is folded into
// every per-option accumulator through compare-and-select, so the write
// pattern is identical for every ballot regardless of the choice inside.
// Returns the recovered voter address.
func (r *Registry) Vote(vote *types.VoteEnvelope) (common.Address, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if vote == nil || len(vote.Ciphertext) == 0 {
		return common.Address{}, ErrInvalidVote
	}
	sig, err := ethereum.BytesToSignature(vote.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidVote, err)
	}
	voter, err := ethereum.AddrFromSignature(vote.SignableBytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidVote, err)
	}

	poll, err := r.stg.Poll(vote.PollID)
	if err != nil {
		return voter, ErrPollNotFound
	}
	if !poll.AcceptingVotes(r.timeFunc()) {
		return voter, ErrPollNotActive
	}
	if r.stg.HasVoted(vote.PollID, voter) {
		return voter, ErrAddressAlreadyVoted
	}

	choice, err := r.scheme.DecodeExternal(vote.Ciphertext, vote.Proof)
	if err != nil {
		return voter, fmt.Errorf("%w: %v", ErrInvalidVote, err)
	}

	newTallies, err := r.foldVote(poll.Tallies, choice)
	if err != nil {
		return voter, fmt.Errorf("could not update tallies: %w", err)
	}

	if err := r.stg.CommitVote(vote.PollID, voter, newTallies); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return voter, ErrAddressAlreadyVoted
		}
		return voter, fmt.Errorf("could not commit vote: %w", err)
	}
	// The receipt tree is derived data: a failed insert loses the receipt
	// but never the vote.
	if err := r.part.Add(vote.PollID, voter); err != nil {
		log.Warnw("failed to add voter to participation tree",
			"pollId", vote.PollID.String(),
			"voter", voter.Hex(),
			"error", err)
	}

	log.Debugw("vote cast", "pollId", vote.PollID.String(), "voter", voter.Hex())
	r.publish(Event{
		Type:   EventVoteCast,
		PollID: vote.PollID,
		Voter:  voter,
	})
	return voter, nil
}

// foldVote returns the tally handles with the encrypted choice counted in.
// For every option index i it computes
//
//	eq  := Equals(choice, EncryptConstant(i))
//	inc := Select(eq, one, zero)
//	tallies[i] = Add(tallies[i], inc)
//
// so exactly one accumulator grows by an encrypted one and the rest by an
// encrypted zero. A choice outside the option range increments nothing.
func (r *Registry) foldVote(tallies []types.HexBytes, choice fhe.Handle) ([]types.HexBytes, error) {
	one, err := r.scheme.EncryptConstant(1)
	if err != nil {
		return nil, err
	}
	zero, err := r.scheme.EncryptConstant(0)
	if err != nil {
		return nil, err
	}
	updated := make([]types.HexBytes, len(tallies))
	for i := range tallies {
		option, err := r.scheme.EncryptConstant(uint64(i))
		if err != nil {
			return nil, err
		}
		eq, err := r.scheme.Equals(choice, option)
		if err != nil {
			return nil, err
		}
		inc, err := r.scheme.Select(eq, one, zero)
		if err != nil {
			return nil, err
		}
		updated[i], err = r.scheme.Add(tallies[i], inc)
		if err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// FinalizePoll closes a poll once its voting window is over: every tally
// handle is marked publicly decryptable so the decryption authority can read
// it, and the one-way Finalized flag is set.
func (r *Registry) FinalizePoll(id types.PollID) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	poll, err := r.stg.Poll(id)
	if err != nil {
		return ErrPollNotFound
	}
	if !poll.Ended(r.timeFunc()) {
		return ErrPollStillActive
	}
	if poll.Finalized {
		return ErrPollAlreadyFinalized
	}

	for i, tally := range poll.Tallies {
		if err := r.scheme.MarkPubliclyDecryptable(tally); err != nil {
			return fmt.Errorf("could not mark tally %d decryptable: %w", i, err)
		}
	}
	if err := r.stg.UpdatePoll(id, storage.PollUpdateCallbackFinalize()); err != nil {
		return fmt.Errorf("could not finalize poll: %w", err)
	}

	log.Infow("poll finalized", "pollId", id.String(), "votes", poll.VoteCount.String())
	r.publish(Event{Type: EventPollFinalized, PollID: id})
	return nil
}

// PublishResults attaches the clear results to a finalized poll. Unless the
// registry runs with StrictProofs disabled and the proof is empty, the proof
// must verify against the poll tallies and the claimed results through the
// scheme. Results are written exactly once.
func (r *Registry) PublishResults(id types.PollID, results []uint64, proof []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	poll, err := r.stg.Poll(id)
	if err != nil {
		return ErrPollNotFound
	}
	if !poll.Finalized {
		return ErrPollNotFinalized
	}
	if poll.ResultsPublished {
		return ErrPollAlreadyPublished
	}
	if len(results) != len(poll.Options) {
		return ErrInvalidResultsLength
	}

	if r.strictProofs || len(proof) > 0 {
		if err := r.scheme.VerifySignedCleartext(poll.Tallies, results, proof); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResultsProof, err)
		}
	}

	stored := make([]*types.BigInt, len(results))
	for i, v := range results {
		stored[i] = new(types.BigInt).SetUint64(v)
	}
	if err := r.stg.UpdatePoll(id, storage.PollUpdateCallbackPublishResults(stored)); err != nil {
		return fmt.Errorf("could not publish results: %w", err)
	}

	log.Infow("poll results published", "pollId", id.String(), "results", results)
	r.publish(Event{Type: EventResultsPublished, PollID: id, Results: stored})
	return nil
}

// SetPollMetadata stores a metadata document and links it to the poll,
// returning the content-addressed URI. Metadata is descriptive only and
// plays no role in the state machine.
func (r *Registry) SetPollMetadata(id types.PollID, metadata *types.Metadata) (string, error) {
	if _, err := r.stg.Poll(id); err != nil {
		return "", ErrPollNotFound
	}
	hash, err := r.stg.SetMetadata(metadata)
	if err != nil {
		return "", fmt.Errorf("could not store metadata: %w", err)
	}
	uri, err := storage.MetadataURI(hash)
	if err != nil {
		return "", err
	}
	if err := r.stg.UpdatePoll(id, storage.PollUpdateCallbackSetMetadataURI(uri)); err != nil {
		return "", fmt.Errorf("could not link metadata: %w", err)
	}
	return uri, nil
}

// Poll returns the current snapshot of a poll.
func (r *Registry) Poll(id types.PollID) (*types.Poll, error) {
	poll, err := r.stg.Poll(id)
	if err != nil {
		return nil, ErrPollNotFound
	}
	return poll, nil
}

// ListPolls returns snapshots of all polls in creation order.
func (r *Registry) ListPolls() ([]*types.Poll, error) {
	ids, err := r.stg.ListPolls()
	if err != nil {
		return nil, err
	}
	polls := make([]*types.Poll, 0, len(ids))
	for _, id := range ids {
		poll, err := r.stg.Poll(id)
		if err != nil {
			return nil, fmt.Errorf("could not load poll %s: %w", id, err)
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

// TotalPolls returns the number of polls ever created.
func (r *Registry) TotalPolls() (uint64, error) {
	return r.stg.TotalPolls()
}

// EncryptedTallies returns the current encrypted accumulator handles of a
// poll, index-aligned with its options.
func (r *Registry) EncryptedTallies(id types.PollID) ([]fhe.Handle, error) {
	poll, err := r.stg.Poll(id)
	if err != nil {
		return nil, ErrPollNotFound
	}
	return poll.Tallies, nil
}

// PublicResults returns the clear results of a poll. Until results are
// published the returned slice is empty.
func (r *Registry) PublicResults(id types.PollID) ([]*types.BigInt, error) {
	poll, err := r.stg.Poll(id)
	if err != nil {
		return nil, ErrPollNotFound
	}
	return poll.Results, nil
}

// HasAddressVoted reports whether the address already voted in the poll.
// Unknown polls and absent voters both report false.
func (r *Registry) HasAddressVoted(id types.PollID, voter common.Address) bool {
	return r.stg.HasVoted(id, voter)
}

// VoteReceipt generates the participation tree inclusion proof for a voter.
// The caller should check HasAddressVoted first; asking for a receipt of an
// address that never voted returns an error.
func (r *Registry) VoteReceipt(id types.PollID, voter common.Address) (*participation.Receipt, error) {
	if _, err := r.stg.Poll(id); err != nil {
		return nil, ErrPollNotFound
	}
	return r.part.GenProof(id, voter)
}
