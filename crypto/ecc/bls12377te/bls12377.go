// Package bls12377te wraps the twisted Edwards curve defined over the
// BLS12-377 scalar field behind the generic curve.Point interface.
package bls12377te

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-377/twistededwards"
	"github.com/fxamacker/cbor/v2"
	curve "github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/types"
)

// CurveType identifies this implementation in serialized artifacts.
const CurveType = "bls12377_te"

var params twistededwards.CurveParams

func init() {
	params = twistededwards.GetEdwardsCurve()
}

// Point is an affine point on the curve.
type Point struct {
	inner *twistededwards.PointAffine
	lock  sync.Mutex
}

// New returns a fresh identity element.
func New() curve.Point {
	p := &Point{inner: new(twistededwards.PointAffine)}
	p.SetZero()
	return p
}

// New returns a fresh identity element.
func (p *Point) New() curve.Point {
	return New()
}

// Order returns the order of the prime subgroup.
func (p *Point) Order() *big.Int {
	return new(big.Int).Set(&params.Order)
}

// Add stores a+b in the receiver.
func (p *Point) Add(a, b curve.Point) {
	p.inner.Add(a.(*Point).inner, b.(*Point).inner)
}

// SafeAdd is Add behind the receiver's mutex, for concurrent accumulation.
func (p *Point) SafeAdd(a, b curve.Point) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.Add(a, b)
}

// ScalarMult stores scalar*a in the receiver. A nil or zero scalar yields
// the identity, which gnark's ScalarMultiplication does not handle.
func (p *Point) ScalarMult(a curve.Point, scalar *big.Int) {
	if scalar == nil || scalar.Sign() == 0 {
		p.SetZero()
		return
	}
	p.inner.ScalarMultiplication(a.(*Point).inner, scalar)
}

// ScalarBaseMult stores scalar*G in the receiver.
func (p *Point) ScalarBaseMult(scalar *big.Int) {
	p.SetGenerator()
	p.ScalarMult(p, scalar)
}

// Marshal returns the gnark-crypto byte encoding of the point.
func (p *Point) Marshal() []byte {
	return p.inner.Marshal()
}

// Unmarshal parses a point from its byte encoding.
func (p *Point) Unmarshal(buf []byte) error {
	return p.inner.Unmarshal(buf)
}

// MarshalJSON encodes the point as a two-element coordinate array.
func (p *Point) MarshalJSON() ([]byte, error) {
	x := types.BigInt(*p.inner.X.BigInt(new(big.Int)))
	y := types.BigInt(*p.inner.Y.BigInt(new(big.Int)))
	return json.Marshal([]types.BigInt{x, y})
}

// UnmarshalJSON decodes a point from a two-element coordinate array.
func (p *Point) UnmarshalJSON(buf []byte) error {
	if p.inner == nil {
		p.inner = new(twistededwards.PointAffine)
	}
	var coords []types.BigInt
	if err := json.Unmarshal(buf, &coords); err != nil {
		return err
	}
	if len(coords) != 2 {
		return fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	p.inner.X.SetBigInt(coords[0].MathBigInt())
	p.inner.Y.SetBigInt(coords[1].MathBigInt())
	return nil
}

// MarshalCBOR encodes the point as a two-element coordinate array.
func (p *Point) MarshalCBOR() ([]byte, error) {
	x := p.inner.X.BigInt(new(big.Int))
	y := p.inner.Y.BigInt(new(big.Int))
	return cbor.Marshal([]*big.Int{x, y})
}

// UnmarshalCBOR decodes a point from a two-element coordinate array.
func (p *Point) UnmarshalCBOR(buf []byte) error {
	if p.inner == nil {
		p.inner = new(twistededwards.PointAffine)
	}
	var coords []*big.Int
	if err := cbor.Unmarshal(buf, &coords); err != nil {
		return err
	}
	if len(coords) != 2 {
		return fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	p.inner.X.SetBigInt(coords[0])
	p.inner.Y.SetBigInt(coords[1])
	return nil
}

// Equal reports whether both points are the same group element.
func (p *Point) Equal(a curve.Point) bool {
	return p.inner.Equal(a.(*Point).inner)
}

// Neg stores -a in the receiver.
func (p *Point) Neg(a curve.Point) {
	p.inner.Neg(a.(*Point).inner)
}

// SetZero resets the receiver to the identity element (0, 1).
func (p *Point) SetZero() {
	p.inner.X.SetZero()
	p.inner.Y.SetOne()
}

// Set copies a into the receiver.
func (p *Point) Set(a curve.Point) {
	p.inner.Set(a.(*Point).inner)
}

// SetGenerator sets the receiver to the base point.
func (p *Point) SetGenerator() {
	p.inner.Set(&params.Base)
}

// String returns the decimal coordinates, comma separated.
func (p *Point) String() string {
	x, y := p.Point()
	return fmt.Sprintf("%s,%s", x.String(), y.String())
}

// Point returns the affine coordinates.
func (p *Point) Point() (*big.Int, *big.Int) {
	x, y := new(big.Int), new(big.Int)
	p.inner.X.BigInt(x)
	p.inner.Y.BigInt(y)
	return x, y
}

// SetPoint builds a point from affine coordinates.
func (p *Point) SetPoint(x, y *big.Int) curve.Point {
	p.inner = new(twistededwards.PointAffine)
	p.inner.X.SetBigInt(x)
	p.inner.Y.SetBigInt(y)
	return p
}

// Type returns the curve identifier.
func (p *Point) Type() string {
	return CurveType
}
