package api

import (
	"net/http"
)

// nodeInfo handles the GET /info endpoint. It returns the node version, the
// network profile, the encryption curve, the configured decryption authority
// and the number of registered polls.
func (a *API) nodeInfo(w http.ResponseWriter, _ *http.Request) {
	total, err := a.registry.TotalPolls()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not count polls: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &NodeInfo{
		Version:       a.version,
		Network:       a.network,
		CurveType:     a.curveType,
		EncryptionKey: a.encryptionKey,
		StrictProofs:  a.registry.StrictProofs(),
		Authority:     a.authority,
		Polls:         total,
	})
}
