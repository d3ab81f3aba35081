package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/types"
)

// PollRequest is the body accepted by the poll creation endpoint. The
// metadata document is optional; when present it is stored and linked to the
// poll in the same request.
type PollRequest struct {
	Name      string          `json:"name"`
	Options   []string        `json:"options"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Metadata  *types.Metadata `json:"metadata,omitempty"`
}

// PollResponse is a poll snapshot plus the lifecycle fields derived from the
// node clock.
type PollResponse struct {
	types.Poll
	Status           string `json:"status"`
	IsAcceptingVotes bool   `json:"isAcceptingVotes"`
}

// PollList is the response returned by the poll list endpoint.
type PollList struct {
	Polls []*PollResponse `json:"polls"`
	Total uint64          `json:"total"`
}

// VoteResponse is the response returned by the vote submission endpoint.
type VoteResponse struct {
	PollID types.PollID   `json:"pollId"`
	Voter  common.Address `json:"voter"`
}

// TalliesResponse carries the current encrypted accumulator handles of a
// poll. The handles are opaque; they change with every vote but reveal
// nothing about the counts inside.
type TalliesResponse struct {
	PollID    types.PollID     `json:"pollId"`
	Tallies   []types.HexBytes `json:"tallies"`
	VoteCount *types.BigInt    `json:"voteCount"`
	Finalized bool             `json:"finalized"`
}

// PublishRequest is the body accepted by the results publication endpoint.
type PublishRequest struct {
	Results []uint64       `json:"results"`
	Proof   types.HexBytes `json:"proof,omitempty"`
}

// ResultsResponse is the response returned by the results endpoint. Results
// is empty until publication. The attestation is attached when the node
// holds one.
type ResultsResponse struct {
	PollID      types.PollID              `json:"pollId"`
	Published   bool                      `json:"published"`
	Results     []*types.BigInt           `json:"results,omitempty"`
	VoteCount   *types.BigInt             `json:"voteCount"`
	Attestation *types.ResultsAttestation `json:"attestation,omitempty"`
}

// ParticipantResponse reports whether an address voted in a poll, with the
// participation tree receipt when available.
type ParticipantResponse struct {
	PollID  types.PollID           `json:"pollId"`
	Address common.Address         `json:"address"`
	Voted   bool                   `json:"voted"`
	Receipt *participation.Receipt `json:"receipt,omitempty"`
}

// SetMetadataResponse is the response returned by the set metadata endpoint.
type SetMetadataResponse struct {
	Hash types.HexBytes `json:"hash"`
	URI  string         `json:"uri"`
}

// NodeInfo contains any relevant information about the current node for a
// client. EncryptionKey is the marshaled scheme public key voters encrypt
// their choices with.
type NodeInfo struct {
	Version       string         `json:"version"`
	Network       string         `json:"network"`
	CurveType     string         `json:"curveType"`
	EncryptionKey types.HexBytes `json:"encryptionKey,omitempty"`
	StrictProofs  bool           `json:"strictProofs"`
	Authority     common.Address `json:"authority"`
	Polls         uint64         `json:"polls"`
}
