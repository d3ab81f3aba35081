package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/types"
)

// pollEndpoint expands an endpoint template with the poll ID.
func pollEndpoint(template string, pollID types.PollID) string {
	return api.EndpointWithParam(template, api.PollURLParam, pollID.String())
}

// CreatePoll registers a new poll on the node and returns its snapshot.
func (c *HTTPclient) CreatePoll(req *api.PollRequest) (*api.PollResponse, error) {
	data, status, err := c.Request(HTTPPOST, req, nil, api.PollsEndpoint)
	if err != nil {
		return nil, err
	}
	poll := &api.PollResponse{}
	if err := decodeResponse(data, status, poll); err != nil {
		return nil, err
	}
	return poll, nil
}

// Poll fetches the current snapshot of a poll.
func (c *HTTPclient) Poll(pollID types.PollID) (*api.PollResponse, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, pollEndpoint(api.PollEndpoint, pollID))
	if err != nil {
		return nil, err
	}
	poll := &api.PollResponse{}
	if err := decodeResponse(data, status, poll); err != nil {
		return nil, err
	}
	return poll, nil
}

// Polls fetches the list of all registered polls.
func (c *HTTPclient) Polls() (*api.PollList, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, api.PollsEndpoint)
	if err != nil {
		return nil, err
	}
	list := &api.PollList{}
	if err := decodeResponse(data, status, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Tallies fetches the current encrypted accumulator handles of a poll.
func (c *HTTPclient) Tallies(pollID types.PollID) (*api.TalliesResponse, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, pollEndpoint(api.PollTalliesEndpoint, pollID))
	if err != nil {
		return nil, err
	}
	tallies := &api.TalliesResponse{}
	if err := decodeResponse(data, status, tallies); err != nil {
		return nil, err
	}
	return tallies, nil
}

// Finalize closes a poll whose voting window is over, sealing the tallies and
// releasing them for decryption.
func (c *HTTPclient) Finalize(pollID types.PollID) (*api.PollResponse, error) {
	data, status, err := c.Request(HTTPPOST, nil, nil, pollEndpoint(api.PollFinalizeEndpoint, pollID))
	if err != nil {
		return nil, err
	}
	poll := &api.PollResponse{}
	if err := decodeResponse(data, status, poll); err != nil {
		return nil, err
	}
	return poll, nil
}

// PublishResults submits the cleartext results of a finalized poll together
// with the authority attestation proving them.
func (c *HTTPclient) PublishResults(pollID types.PollID, results []uint64, proof types.HexBytes) (*api.ResultsResponse, error) {
	req := &api.PublishRequest{Results: results, Proof: proof}
	data, status, err := c.Request(HTTPPOST, req, nil, pollEndpoint(api.PollResultsEndpoint, pollID))
	if err != nil {
		return nil, err
	}
	resp := &api.ResultsResponse{}
	if err := decodeResponse(data, status, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Results fetches the results snapshot of a poll. Results are empty until
// publication.
func (c *HTTPclient) Results(pollID types.PollID) (*api.ResultsResponse, error) {
	data, status, err := c.Request(HTTPGET, nil, nil, pollEndpoint(api.PollResultsEndpoint, pollID))
	if err != nil {
		return nil, err
	}
	resp := &api.ResultsResponse{}
	if err := decodeResponse(data, status, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WaitUntilPublished polls the results endpoint until the poll results are
// published or the context expires. A missing poll aborts the wait.
func (c *HTTPclient) WaitUntilPublished(ctx context.Context, pollID types.PollID, interval time.Duration) (*api.ResultsResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		results, err := c.Results(pollID)
		if err == nil && results.Published {
			return results, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.HTTPstatus == http.StatusNotFound {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for poll %s results: %w", pollID.String(), ctx.Err())
		case <-ticker.C:
		}
	}
}
