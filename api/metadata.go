package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

// setMetadata handles the POST /metadata endpoint. It stores a metadata
// document under its content hash and returns the hash and the ipfs URI that
// polls can link to.
func (a *API) setMetadata(w http.ResponseWriter, r *http.Request) {
	metadata := &types.Metadata{}
	if err := json.NewDecoder(r.Body).Decode(metadata); err != nil {
		ErrMalformedBody.Withf("could not decode metadata: %v", err).Write(w)
		return
	}
	hash, err := a.storage.SetMetadata(metadata)
	if err != nil {
		ErrGenericInternalServerError.Withf("could not store metadata: %v", err).Write(w)
		return
	}
	uri, err := storage.MetadataURI(hash)
	if err != nil {
		ErrGenericInternalServerError.Withf("could not build metadata URI: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &SetMetadataResponse{Hash: types.HexBytes(hash), URI: uri})
}

// fetchMetadata handles the GET /metadata/{metadataHash} endpoint. The
// parameter is the content hash CID returned when the document was stored.
func (a *API) fetchMetadata(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, MetadataHashParam)
	hash, err := storage.MetadataHashFromURI(param)
	if err != nil {
		ErrMalformedMetadataHash.Withf("could not parse metadata reference: %v", err).Write(w)
		return
	}
	metadata, err := a.storage.Metadata(hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrMetadataNotFound.Withf("%s", param).Write(w)
			return
		}
		ErrGenericInternalServerError.Withf("could not fetch metadata: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, metadata)
}
