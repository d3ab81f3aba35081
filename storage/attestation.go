package storage

import (
	"fmt"

	"github.com/sealedvote/sealedvote-node/db/prefixeddb"
	"github.com/sealedvote/sealedvote-node/types"
)

// SetAttestation stores the authority attestation for a poll, keyed by the
// poll identifier. Storing again overwrites: the finalizer may regenerate an
// attestation after a crash between attesting and publishing, and the
// regenerated document attests the same tallies.
func (s *Storage) SetAttestation(att *types.ResultsAttestation) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if att == nil {
		return fmt.Errorf("nil attestation")
	}
	return s.setArtifact(attestationPrefix, att.PollID.Bytes(), att)
}

// Attestation retrieves the authority attestation for a poll. Returns
// ErrNotFound if the poll has not been attested yet.
func (s *Storage) Attestation(pollID types.PollID) (*types.ResultsAttestation, error) {
	att := &types.ResultsAttestation{}
	if err := s.getArtifact(attestationPrefix, pollID.Bytes(), att); err != nil {
		return nil, err
	}
	return att, nil
}

// HasAttestation checks if an attestation exists for a poll. This is used to
// avoid re-running the decryption when an earlier attempt already produced an
// attestation but failed to publish.
func (s *Storage) HasAttestation(pollID types.PollID) bool {
	_, err := prefixeddb.NewPrefixedReader(s.db, attestationPrefix).Get(pollID.Bytes())
	return err == nil
}
