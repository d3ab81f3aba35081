package client

import (
	"strings"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/types"
)

const metadataURIScheme = "ipfs://"

// SetMetadata stores a metadata document on the node and returns its content
// hash and URI.
func (c *HTTPclient) SetMetadata(doc *types.Metadata) (*api.SetMetadataResponse, error) {
	data, status, err := c.Request(HTTPPOST, doc, nil, api.MetadataSetEndpoint)
	if err != nil {
		return nil, err
	}
	resp := &api.SetMetadataResponse{}
	if err := decodeResponse(data, status, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Metadata fetches a metadata document by reference. Both the bare content
// CID and the full ipfs URI form are accepted.
func (c *HTTPclient) Metadata(ref string) (*types.Metadata, error) {
	ref = strings.TrimPrefix(ref, metadataURIScheme)
	data, status, err := c.Request(HTTPGET, nil, nil,
		api.EndpointWithParam(api.MetadataGetEndpoint, api.MetadataHashParam, ref))
	if err != nil {
		return nil, err
	}
	doc := &types.Metadata{}
	if err := decodeResponse(data, status, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
