// Package config provides the built-in network profiles for the sealedvote
// node.
package config

import "github.com/sealedvote/sealedvote-node/crypto/ecc/curves"

// NetworkProfile describes the per-network behavior of a node.
type NetworkProfile struct {
	// StrictProofs requires a verifiable attestation on every results
	// publication. Only the local profile disables it.
	StrictProofs bool
	// CurveType is the ElGamal curve used by the tally scheme.
	CurveType string
	// MaxMessage is the inclusive upper bound for per-option counts
	// recoverable by the decryption search.
	MaxMessage uint64
}

// DefaultProfiles contains the built-in network profiles by name.
var DefaultProfiles = map[string]NetworkProfile{
	"local": {
		StrictProofs: false,
		CurveType:    curves.DefaultCurveType,
		MaxMessage:   65535,
	},
	"dev": {
		StrictProofs: true,
		CurveType:    curves.DefaultCurveType,
		MaxMessage:   65535,
	},
	"main": {
		StrictProofs: true,
		CurveType:    curves.DefaultCurveType,
		MaxMessage:   1 << 24,
	},
}

// AvailableNetworks contains the list of networks a node can run on.
var AvailableNetworks = []string{
	"local",
	"dev",
	"main",
}
