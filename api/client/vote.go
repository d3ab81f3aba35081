package client

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/types"
)

// Vote submits a signed vote envelope and returns the voter address the node
// recovered from the signature.
func (c *HTTPclient) Vote(envelope *types.VoteEnvelope) (*api.VoteResponse, error) {
	data, status, err := c.Request(HTTPPOST, envelope, nil,
		pollEndpoint(api.PollVotesEndpoint, envelope.PollID))
	if err != nil {
		return nil, err
	}
	resp := &api.VoteResponse{}
	if err := decodeResponse(data, status, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Participant fetches the participation record of an address in a poll,
// including the merkle receipt when the node can generate one. Addresses
// that have not voted are reported as not found.
func (c *HTTPclient) Participant(pollID types.PollID, address common.Address) (*api.ParticipantResponse, error) {
	endpoint := pollEndpoint(api.PollParticipantEndpoint, pollID)
	endpoint = api.EndpointWithParam(endpoint, api.AddressURLParam, address.Hex())
	data, status, err := c.Request(HTTPGET, nil, nil, endpoint)
	if err != nil {
		return nil, err
	}
	resp := &api.ParticipantResponse{}
	if err := decodeResponse(data, status, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
