package registry

import "errors"

// Sentinel errors returned by the registry operations. Callers match them
// with errors.Is to map lifecycle failures to API responses.
var (
	// ErrEmptyName is returned by CreatePoll when the poll name is empty.
	ErrEmptyName = errors.New("poll name is empty")
	// ErrInvalidOptionCount is returned by CreatePoll when the number of
	// options is out of bounds or an option is empty.
	ErrInvalidOptionCount = errors.New("poll needs between 2 and 4 non-empty options")
	// ErrInvalidSchedule is returned by CreatePoll when the voting window is
	// inverted or already over.
	ErrInvalidSchedule = errors.New("poll schedule is invalid")
	// ErrPollNotFound is returned when no poll exists with the identifier.
	ErrPollNotFound = errors.New("poll not found")
	// ErrPollNotActive is returned by Vote outside the voting window.
	ErrPollNotActive = errors.New("poll is not accepting votes")
	// ErrAddressAlreadyVoted is returned by Vote when the recovered address
	// already has a participation marker for the poll.
	ErrAddressAlreadyVoted = errors.New("address already voted in this poll")
	// ErrInvalidVote is returned by Vote when the envelope cannot be decoded
	// or its signature does not recover an address.
	ErrInvalidVote = errors.New("invalid vote envelope")
	// ErrPollStillActive is returned by FinalizePoll before the window ends.
	ErrPollStillActive = errors.New("poll voting window is still open")
	// ErrPollAlreadyFinalized is returned by FinalizePoll on a second call.
	ErrPollAlreadyFinalized = errors.New("poll is already finalized")
	// ErrPollNotFinalized is returned by PublishResults before finalization.
	ErrPollNotFinalized = errors.New("poll is not finalized")
	// ErrPollAlreadyPublished is returned by PublishResults on a second call.
	ErrPollAlreadyPublished = errors.New("poll results are already published")
	// ErrInvalidResultsLength is returned by PublishResults when the results
	// do not have one entry per option.
	ErrInvalidResultsLength = errors.New("results length does not match poll options")
	// ErrInvalidResultsProof is returned by PublishResults when the proof
	// does not verify against the tallies and results.
	ErrInvalidResultsProof = errors.New("results proof verification failed")
)
