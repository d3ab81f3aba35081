package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Poll endpoints
	PollURLParam            = "pollId"                                                 // URL parameter for poll ID
	AddressURLParam         = "address"                                                // URL parameter for voter address
	PollsEndpoint           = "/polls"                                                 // GET: List polls, POST: Create poll
	PollEndpoint            = PollsEndpoint + "/{" + PollURLParam + "}"                // GET: Get poll info
	PollVotesEndpoint       = PollEndpoint + "/votes"                                  // POST: Submit a vote
	PollTalliesEndpoint     = PollEndpoint + "/tallies"                                // GET: Encrypted tally handles
	PollFinalizeEndpoint    = PollEndpoint + "/finalize"                               // POST: Finalize the poll
	PollResultsEndpoint     = PollEndpoint + "/results"                                // GET: Clear results, POST: Publish results
	PollParticipantEndpoint = PollEndpoint + "/participants/{" + AddressURLParam + "}" // GET: Participation info and receipt

	// Info endpoint
	InfoEndpoint = "/info" // GET: Node and scheme information

	// Metadata endpoints
	MetadataHashParam   = "metadataHash"                                       // URL parameter for metadata hash
	MetadataSetEndpoint = "/metadata"                                          // POST: Store metadata
	MetadataGetEndpoint = MetadataSetEndpoint + "/{" + MetadataHashParam + "}" // GET: Fetch metadata
)

// EndpointWithParam fills the {key} placeholder in path with param. When the
// path has no such placeholder the pair is appended as a query parameter
// instead.
func EndpointWithParam(path, key, param string) string {
	placeholder := fmt.Sprintf("{%s}", key)
	if strings.Contains(path, placeholder) {
		return strings.Replace(path, placeholder, url.PathEscape(param), 1)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%s", path, sep, url.QueryEscape(key), url.QueryEscape(param))
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
	InfoEndpoint,
}
