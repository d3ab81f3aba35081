// Package curves instantiates ecc.Point implementations by type identifier.
package curves

import (
	"slices"

	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	bjj "github.com/sealedvote/sealedvote-node/crypto/ecc/bjj_iden3"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/bls12377te"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/bn254"
)

// DefaultCurveType is the curve used for tally encryption unless configured
// otherwise.
const DefaultCurveType = bn254.CurveType

// New instantiates a point on the curve named by curveType, panicking on an
// unknown name. Callers taking untrusted input should check IsValid first.
func New(curveType string) ecc.Point {
	switch curveType {
	case bn254.CurveType:
		return new(bn254.G1).New()
	case bjj.CurveType:
		return bjj.New()
	case bls12377te.CurveType:
		return bls12377te.New()
	default:
		panic("unsupported curve type: " + curveType)
	}
}

// Curves lists the supported curve type identifiers.
func Curves() []string {
	return []string{
		bn254.CurveType,
		bjj.CurveType,
		bls12377te.CurveType,
	}
}

// IsValid reports whether curveType names a supported curve.
func IsValid(curveType string) bool {
	return slices.Contains(Curves(), curveType)
}
