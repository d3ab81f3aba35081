package types

import (
	"bytes"
	"encoding/json"
)

// VoteEnvelope is the payload a voter submits to cast a ballot on a poll. The
// ciphertext is the externally encrypted choice, opaque to the registry, and
// the proof is whatever attestation the encryption capability requires to
// accept it. The signature covers SignableBytes and binds the envelope to the
// voter identity recovered from it.
type VoteEnvelope struct {
	PollID     PollID   `json:"pollId"              cbor:"0,keyasint,omitempty"`
	Ciphertext HexBytes `json:"ciphertext"          cbor:"1,keyasint,omitempty"`
	Proof      HexBytes `json:"proof,omitempty"     cbor:"2,keyasint,omitempty"`
	Signature  HexBytes `json:"signature,omitempty" cbor:"3,keyasint,omitempty"`
}

// SignableBytes returns the deterministic serialization covered by the vote
// signature: poll ID, ciphertext and proof, in that order. The signature
// itself is excluded.
func (v *VoteEnvelope) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.Write(v.PollID.Bytes())
	buf.Write(v.Ciphertext)
	buf.Write(v.Proof)
	return buf.Bytes()
}

func (v *VoteEnvelope) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
