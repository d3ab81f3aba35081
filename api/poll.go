package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/types"
)

// urlPollID extracts and parses the decimal poll ID from the request URL.
func urlPollID(r *http.Request) (types.PollID, error) {
	return types.PollIDFromString(chi.URLParam(r, PollURLParam))
}

// pollResponse builds the API snapshot of a poll, deriving the lifecycle
// status from the registry clock.
func (a *API) pollResponse(poll *types.Poll) *PollResponse {
	now := a.registry.Now()
	return &PollResponse{
		Poll:             *poll,
		Status:           poll.Status(now).String(),
		IsAcceptingVotes: poll.AcceptingVotes(now),
	}
}

// createPoll handles the POST /polls endpoint. It registers a new poll with
// encrypted zero tallies and optionally stores and links a metadata document
// in the same request.
func (a *API) createPoll(w http.ResponseWriter, r *http.Request) {
	req := &PollRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	poll, err := a.registry.CreatePoll(req.Name, req.Options, req.StartTime, req.EndTime)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrEmptyName),
		errors.Is(err, registry.ErrInvalidOptionCount),
		errors.Is(err, registry.ErrInvalidSchedule):
		ErrInvalidPollDefinition.WithErr(err).Write(w)
		return
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if req.Metadata != nil {
		uri, err := a.registry.SetPollMetadata(poll.ID, req.Metadata)
		if err != nil {
			ErrGenericInternalServerError.Withf("could not store poll metadata: %v", err).Write(w)
			return
		}
		poll.MetadataURI = uri
	}
	httpWriteJSON(w, a.pollResponse(poll))
}

// pollList handles the GET /polls endpoint. It returns snapshots of every
// registered poll in creation order.
func (a *API) pollList(w http.ResponseWriter, _ *http.Request) {
	polls, err := a.registry.ListPolls()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not list polls: %v", err).Write(w)
		return
	}
	list := &PollList{
		Polls: make([]*PollResponse, 0, len(polls)),
		Total: uint64(len(polls)),
	}
	for _, poll := range polls {
		list.Polls = append(list.Polls, a.pollResponse(poll))
	}
	httpWriteJSON(w, list)
}

// poll handles the GET /polls/{pollId} endpoint.
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	poll, err := a.registry.Poll(pollID)
	if err != nil {
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	}
	httpWriteJSON(w, a.pollResponse(poll))
}

// pollTallies handles the GET /polls/{pollId}/tallies endpoint. It returns
// the current encrypted accumulator handles, which are opaque until the poll
// is finalized and decrypted by the authority.
func (a *API) pollTallies(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	poll, err := a.registry.Poll(pollID)
	if err != nil {
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	}
	httpWriteJSON(w, &TalliesResponse{
		PollID:    poll.ID,
		Tallies:   poll.Tallies,
		VoteCount: poll.VoteCount,
		Finalized: poll.Finalized,
	})
}

// finalizePoll handles the POST /polls/{pollId}/finalize endpoint. It seals
// the tallies, marks them publicly decryptable and, when a finalizer is
// attached, queues the poll for attestation and publication.
func (a *API) finalizePoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	err = a.registry.FinalizePoll(pollID)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrPollNotFound):
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	case errors.Is(err, registry.ErrPollStillActive):
		ErrPollStillActive.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrPollAlreadyFinalized):
		ErrPollAlreadyFinalized.WithErr(err).Write(w)
		return
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	// Queue the poll for decryption and publication without blocking the
	// request. A full channel means the monitor will pick it up anyway.
	if a.finalizer != nil {
		select {
		case a.finalizer.OndemandCh <- pollID:
		default:
		}
	}
	poll, err := a.registry.Poll(pollID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, a.pollResponse(poll))
}

// publishResults handles the POST /polls/{pollId}/results endpoint. It
// records the cleartext results of a finalized poll, verifying the attached
// authority attestation according to the node's proof policy.
func (a *API) publishResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	req := &PublishRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	err = a.registry.PublishResults(pollID, req.Results, req.Proof)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrPollNotFound):
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	case errors.Is(err, registry.ErrPollNotFinalized):
		ErrPollNotFinalized.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrPollAlreadyPublished):
		ErrResultsAlreadyPublished.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrInvalidResultsLength):
		ErrInvalidResults.WithErr(err).Write(w)
		return
	case errors.Is(err, registry.ErrInvalidResultsProof):
		ErrInvalidResultsProof.WithErr(err).Write(w)
		return
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	a.writeResults(w, pollID)
}

// pollResults handles the GET /polls/{pollId}/results endpoint. Results are
// empty until the poll is published.
func (a *API) pollResults(w http.ResponseWriter, r *http.Request) {
	pollID, err := urlPollID(r)
	if err != nil {
		ErrMalformedPollID.Withf("could not parse poll ID: %v", err).Write(w)
		return
	}
	a.writeResults(w, pollID)
}

// writeResults writes the results snapshot of a poll, attaching the stored
// authority attestation when the node holds one.
func (a *API) writeResults(w http.ResponseWriter, pollID types.PollID) {
	poll, err := a.registry.Poll(pollID)
	if err != nil {
		ErrPollNotFound.Withf("%d", pollID).Write(w)
		return
	}
	resp := &ResultsResponse{
		PollID:    poll.ID,
		Published: poll.ResultsPublished,
		Results:   poll.Results,
		VoteCount: poll.VoteCount,
	}
	if a.storage.HasAttestation(pollID) {
		att, err := a.storage.Attestation(pollID)
		if err == nil {
			resp.Attestation = att
		}
	}
	httpWriteJSON(w, resp)
}
