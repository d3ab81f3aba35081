package types

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"time"
)

// PollIDByteLength is the size in bytes of a serialized poll identifier.
const PollIDByteLength = 8

// Poll option count bounds enforced at creation time.
const (
	MinPollOptions = 2
	MaxPollOptions = 4
)

// PollID is the dense sequential identifier of a poll. The first poll created
// gets ID 0, the next one 1 and so on, with no gaps: the identifier doubles as
// the poll count minus one.
type PollID uint64

// PollIDFromBytes decodes a big-endian serialized poll identifier.
func PollIDFromBytes(b []byte) PollID {
	if len(b) != PollIDByteLength {
		return 0
	}
	return PollID(binary.BigEndian.Uint64(b))
}

// PollIDFromString parses a decimal poll identifier.
func PollIDFromString(s string) (PollID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return PollID(id), nil
}

// Bytes returns the big-endian byte representation of the poll ID. The width
// is fixed so lexicographic key order matches numeric order.
func (id PollID) Bytes() []byte {
	b := make([]byte, PollIDByteLength)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// String returns the decimal representation of the poll ID.
func (id PollID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type PollStatus uint8

const (
	PollStatusScheduled = PollStatus(iota) // Poll exists but its voting window has not opened yet
	PollStatusActive                       // Poll is inside its voting window
	PollStatusClosed                       // Voting window is over, tallies still sealed
	PollStatusFinalized                    // Tallies are marked for public decryption
	PollStatusPublished                    // Clear results are available

	PollStatusScheduledName = "scheduled"
	PollStatusActiveName    = "active"
	PollStatusClosedName    = "closed"
	PollStatusFinalizedName = "finalized"
	PollStatusPublishedName = "published"
)

func (s PollStatus) String() string {
	switch s {
	case PollStatusScheduled:
		return PollStatusScheduledName
	case PollStatusActive:
		return PollStatusActiveName
	case PollStatusClosed:
		return PollStatusClosedName
	case PollStatusFinalized:
		return PollStatusFinalizedName
	case PollStatusPublished:
		return PollStatusPublishedName
	default:
		return "unknown"
	}
}

// Poll holds the full state of a confidential poll. Name, options and the
// voting window are immutable after creation. Tallies are opaque handles to
// encrypted per-option accumulators, index-aligned with Options. Results is
// only set by a successful publish and is never overwritten afterwards.
type Poll struct {
	ID               PollID     `json:"id"                    cbor:"0,keyasint,omitempty"`
	Name             string     `json:"name"                  cbor:"1,keyasint,omitempty"`
	Options          []string   `json:"options"               cbor:"2,keyasint,omitempty"`
	StartTime        time.Time  `json:"startTime"             cbor:"3,keyasint,omitempty"`
	EndTime          time.Time  `json:"endTime"               cbor:"4,keyasint,omitempty"`
	Tallies          []HexBytes `json:"tallies"               cbor:"5,keyasint,omitempty"`
	Finalized        bool       `json:"finalized"             cbor:"6,keyasint,omitempty"`
	ResultsPublished bool       `json:"resultsPublished"      cbor:"7,keyasint,omitempty"`
	Results          []*BigInt  `json:"results,omitempty"     cbor:"8,keyasint,omitempty"`
	VoteCount        *BigInt    `json:"voteCount"             cbor:"9,keyasint,omitempty"`
	MetadataURI      string     `json:"metadataURI,omitempty" cbor:"10,keyasint,omitempty"`
	Metadata         *Metadata  `json:"metadata,omitempty"    cbor:"11,keyasint,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"             cbor:"12,keyasint,omitempty"`
}

// Status derives the lifecycle stage of the poll at the given time. The two
// boolean flags take precedence over the clock since finalization and
// publication are one-way transitions.
func (p *Poll) Status(now time.Time) PollStatus {
	switch {
	case p.ResultsPublished:
		return PollStatusPublished
	case p.Finalized:
		return PollStatusFinalized
	case !now.Before(p.EndTime):
		return PollStatusClosed
	case now.Before(p.StartTime):
		return PollStatusScheduled
	default:
		return PollStatusActive
	}
}

// AcceptingVotes reports whether the voting window is open at the given time.
// The start bound is inclusive, the end bound is exclusive.
func (p *Poll) AcceptingVotes(now time.Time) bool {
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

// Ended reports whether the voting window is over at the given time.
func (p *Poll) Ended(now time.Time) bool {
	return !now.Before(p.EndTime)
}

func (p *Poll) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// PollWithStatusChange extends types.Poll to add OldStatus and NewStatus
// fields
type PollWithStatusChange struct {
	*Poll
	OldStatus PollStatus
	NewStatus PollStatus
}
