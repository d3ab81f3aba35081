package types

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
)

// ResultsAttestation is the decryption authority's statement that the given
// clear results are the decryption of the tally handles of a poll. The
// signature covers SignableBytes and is checked against the configured
// authority address before results are accepted.
type ResultsAttestation struct {
	PollID           PollID     `json:"pollId"                     cbor:"0,keyasint,omitempty"`
	Tallies          []HexBytes `json:"tallies"                    cbor:"1,keyasint,omitempty"`
	Results          []*BigInt  `json:"results"                    cbor:"2,keyasint,omitempty"`
	DecryptionProofs []HexBytes `json:"decryptionProofs,omitempty" cbor:"3,keyasint,omitempty"`
	Signature        HexBytes   `json:"signature,omitempty"        cbor:"4,keyasint,omitempty"`
}

// SignableBytes returns the deterministic serialization covered by the
// attestation signature: the poll ID, then the tally handles and the clear
// results, each length-prefixed and left-padded to 32 bytes. Decryption
// proofs and the signature itself are excluded, so a verifier that only
// tracks handles and results can recompute it.
func (a *ResultsAttestation) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.Write(a.PollID.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(a.Tallies)))
	for _, t := range a.Tallies {
		buf.Write(t.LeftPad(32))
	}
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(a.Results)))
	for _, r := range a.Results {
		if r == nil {
			buf.Write(make([]byte, 32))
			continue
		}
		buf.Write(HexBytes(r.Bytes()).LeftPad(32))
	}
	return buf.Bytes()
}

func (a *ResultsAttestation) String() string {
	data, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return string(data)
}
