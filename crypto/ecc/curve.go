// Package ecc defines the elliptic curve point abstraction shared by all
// curve implementations. Implementations wrap a concrete curve library and
// normalize its API so the encryption layer can work with any of them.
package ecc

import "math/big"

// Point defines the interface for elliptic curve points, providing methods
// for point arithmetic, serialization and comparison. Implementations are
// mutable: operations store their result in the receiver.
type Point interface {
	// New creates a new point of the same curve type
	New() Point
	// Order returns the order of the curve subgroup
	Order() *big.Int
	// Add stores the addition of points a and b in the receiver
	Add(a, b Point)
	// SafeAdd is like Add but locks the receiver during the operation
	SafeAdd(a, b Point)
	// ScalarMult stores scalar * a in the receiver
	ScalarMult(a Point, scalar *big.Int)
	// ScalarBaseMult stores scalar * G in the receiver, G being the curve
	// generator
	ScalarBaseMult(scalar *big.Int)
	// Equal reports whether the receiver and a represent the same point
	Equal(a Point) bool
	// Neg stores the negation of a in the receiver
	Neg(a Point)
	// SetZero sets the receiver to the identity element
	SetZero()
	// Set copies a into the receiver
	Set(a Point)
	// SetGenerator sets the receiver to the curve generator
	SetGenerator()
	// Point returns the affine coordinates of the point
	Point() (*big.Int, *big.Int)
	// SetPoint sets the receiver from affine coordinates and returns it
	SetPoint(x, y *big.Int) Point
	// Marshal serializes the point to a byte slice
	Marshal() []byte
	// Unmarshal deserializes the point from a byte slice
	Unmarshal(buf []byte) error
	// MarshalJSON serializes the point as a JSON coordinate pair
	MarshalJSON() ([]byte, error)
	// UnmarshalJSON deserializes the point from a JSON coordinate pair
	UnmarshalJSON(buf []byte) error
	// MarshalCBOR serializes the point as a CBOR coordinate pair
	MarshalCBOR() ([]byte, error)
	// UnmarshalCBOR deserializes the point from a CBOR coordinate pair
	UnmarshalCBOR(buf []byte) error
	// Type returns the curve type identifier
	Type() string
	// String returns a human readable representation of the point
	String() string
}
