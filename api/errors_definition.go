//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If an error stops being used, leave its code unassigned forever; don't reuse it.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound        = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody           = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature        = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrMalformedPollID         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed poll ID")}
	ErrPollNotFound            = Error{Code: 40005, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("poll not found")}
	ErrMalformedAddress        = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrInvalidPollDefinition   = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid poll definition")}
	ErrInvalidVote             = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote")}
	ErrAddressAlreadyVoted     = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("address already voted")}
	ErrPollNotAcceptingVotes   = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("poll is not accepting votes")}
	ErrPollStillActive         = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("poll voting window is still open")}
	ErrPollAlreadyFinalized    = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll already finalized")}
	ErrPollNotFinalized        = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("poll not finalized")}
	ErrResultsAlreadyPublished = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("results already published")}
	ErrInvalidResults          = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid results")}
	ErrInvalidResultsProof     = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid results proof")}
	ErrMalformedMetadataHash   = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed metadata hash")}
	ErrMetadataNotFound        = Error{Code: 40018, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("metadata not found")}
	ErrParticipantNotFound     = Error{Code: 40019, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("participant not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
