package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/types"
)

// newVote handles the POST /polls/{pollId}/votes endpoint. It accepts a
// signed vote envelope with an externally encrypted choice, verifies it
// through the registry and returns the recovered voter address.
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	vote := &types.VoteEnvelope{}
	if err := json.NewDecoder(r.Body).Decode(vote); err != nil {
		ErrMalformedBody.Withf("could not decode vote envelope: %v", err).Write(w)
		return
	}
	// The poll ID is covered by the vote signature, so the envelope must
	// already carry the right one. Rewriting it here would break recovery.
	if vote.PollID != pollID {
		ErrMalformedBody.Withf("vote poll ID %d does not match URL poll ID %d", vote.PollID, pollID).Write(w)
		return
	}
	if len(vote.Signature) == 0 {
		ErrInvalidSignature.Withf("missing vote signature").Write(w)
		return
	}
	voter, err := a.registry.Vote(vote)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrPollNotFound):
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	case errors.Is(err, registry.ErrPollNotActive):
		ErrPollNotAcceptingVotes.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrAddressAlreadyVoted):
		ErrAddressAlreadyVoted.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrInvalidVote):
		ErrInvalidVote.WithErr(err).Write(w)
		return
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{PollID: pollID, Voter: voter})
}

// pollParticipant handles the GET /polls/{pollId}/participants/{address}
// endpoint. It reports whether the address voted in the poll, attaching a
// participation tree receipt when one can be generated. Addresses that have
// not voted are reported as not found.
func (a *API) pollParticipant(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	addrStr := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(addrStr) {
		ErrMalformedAddress.Withf("%s", addrStr).Write(w)
		return
	}
	addr := common.HexToAddress(addrStr)
	if _, err := a.registry.Poll(pollID); err != nil {
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	}
	if !a.registry.HasAddressVoted(pollID, addr) {
		ErrParticipantNotFound.Withf("%s has not voted in poll %d", addr.Hex(), pollID).Write(w)
		return
	}
	resp := &ParticipantResponse{PollID: pollID, Address: addr, Voted: true}
	// The merkle receipt is auxiliary. The voted flag comes from storage and
	// stands on its own if the participation tree cannot prove it right now.
	receipt, err := a.registry.VoteReceipt(pollID, addr)
	if err != nil {
		log.Warnw("could not generate participation receipt",
			"pollId", pollID.String(), "address", addr.Hex(), "error", err.Error())
	} else {
		resp.Receipt = receipt
	}
	httpWriteJSON(w, resp)
}
