package elgamal

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
)

const (
	sizeCoord = 32
	sizePoint = 2 * sizeCoord
	// SerializedCiphertextSize is the byte length of a serialized ciphertext:
	// the four affine coordinates C1.X, C1.Y, C2.X, C2.Y, each big-endian
	// padded to 32 bytes.
	SerializedCiphertextSize = 2 * sizePoint
)

// Ciphertext is an ElGamal encrypted value over one of the supported curves.
// The zero message encrypts to a valid ciphertext, so accumulators start from
// an encryption of zero rather than from a zero value.
type Ciphertext struct {
	CurveType string
	C1        ecc.Point
	C2        ecc.Point
}

// NewCiphertext creates a new Ciphertext on the given curve, with both points
// set to the identity element.
func NewCiphertext(curve ecc.Point) *Ciphertext {
	c1 := curve.New()
	c1.SetZero()
	c2 := curve.New()
	c2.SetZero()
	return &Ciphertext{CurveType: curve.Type(), C1: c1, C2: c2}
}

// Encrypt stores in z the encryption of message under publicKey. The
// randomness k can be provided to make the ciphertext deterministic, or nil
// to generate a fresh one.
func (z *Ciphertext) Encrypt(message *big.Int, publicKey ecc.Point, k *big.Int) (*Ciphertext, error) {
	var err error
	if k == nil {
		k, err = RandK(publicKey.Order())
		if err != nil {
			return nil, fmt.Errorf("elgamal encryption failed: %w", err)
		}
	}
	c1, c2 := EncryptWithK(publicKey, message, k)
	z.CurveType = publicKey.Type()
	z.C1 = c1
	z.C2 = c2
	return z, nil
}

// Add adds two Ciphertexts and stores the result in the receiver, which is
// also returned. Adding ciphertexts adds the underlying plaintexts.
func (z *Ciphertext) Add(x, y *Ciphertext) *Ciphertext {
	z.C1.SafeAdd(x.C1, y.C1)
	z.C2.SafeAdd(x.C2, y.C2)
	return z
}

// Sub subtracts y from x and stores the result in the receiver, which is
// also returned. Subtracting ciphertexts subtracts the underlying plaintexts.
func (z *Ciphertext) Sub(x, y *Ciphertext) *Ciphertext {
	negC1 := y.C1.New()
	negC1.Neg(y.C1)
	negC2 := y.C2.New()
	negC2.Neg(y.C2)
	z.C1.SafeAdd(x.C1, negC1)
	z.C2.SafeAdd(x.C2, negC2)
	return z
}

// IsZero checks if both ciphertext points are the identity element.
func (z *Ciphertext) IsZero() bool {
	if !curves.IsValid(z.CurveType) {
		return false
	}
	zero := curves.New(z.CurveType)
	zero.SetZero()
	return z.C1.Equal(zero) && z.C2.Equal(zero)
}

// Valid checks that both points are set and the curve type is supported.
func (z *Ciphertext) Valid() bool {
	return z.C1 != nil && z.C2 != nil && curves.IsValid(z.CurveType)
}

// Serialize returns a slice of SerializedCiphertextSize bytes, the four
// affine coordinates big-endian padded to 32 bytes each. The encoding is
// deterministic for a given ciphertext, so it is also used as the preimage of
// ciphertext handles.
func (z *Ciphertext) Serialize() []byte {
	buf := make([]byte, 0, SerializedCiphertextSize)
	for _, p := range []ecc.Point{z.C1, z.C2} {
		x, y := p.Point()
		buf = append(buf, padCoord(x)...)
		buf = append(buf, padCoord(y)...)
	}
	return buf
}

// Deserialize reconstructs a Ciphertext from its serialized form. The
// receiver must have CurveType set so the points can be allocated on the
// right curve.
func (z *Ciphertext) Deserialize(data []byte) error {
	if len(data) != SerializedCiphertextSize {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrInvalidCiphertext, len(data), SerializedCiphertextSize)
	}
	if !curves.IsValid(z.CurveType) {
		return fmt.Errorf("%w: %q", ErrInvalidCurveType, z.CurveType)
	}
	coords := make([]*big.Int, 4)
	for i := range coords {
		coords[i] = new(big.Int).SetBytes(data[i*sizeCoord : (i+1)*sizeCoord])
	}
	z.C1 = curves.New(z.CurveType).SetPoint(coords[0], coords[1])
	z.C2 = curves.New(z.CurveType).SetPoint(coords[2], coords[3])
	return nil
}

// DeserializeCiphertext reconstructs a Ciphertext from its serialized form on
// the given curve type.
func DeserializeCiphertext(curveType string, data []byte) (*Ciphertext, error) {
	z := &Ciphertext{CurveType: curveType}
	if err := z.Deserialize(data); err != nil {
		return nil, err
	}
	return z, nil
}

type ciphertextEnvelope struct {
	CurveType string          `json:"curveType,omitempty"`
	C1        json.RawMessage `json:"c1"`
	C2        json.RawMessage `json:"c2"`
}

// MarshalJSON implements json.Marshaler for Ciphertext.
func (z *Ciphertext) MarshalJSON() ([]byte, error) {
	c1, err := z.C1.MarshalJSON()
	if err != nil {
		return nil, err
	}
	c2, err := z.C2.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(ciphertextEnvelope{CurveType: z.CurveType, C1: c1, C2: c2})
}

// UnmarshalJSON implements json.Unmarshaler for Ciphertext, allocating the
// points on the curve named by the envelope.
func (z *Ciphertext) UnmarshalJSON(data []byte) error {
	var env ciphertextEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if !curves.IsValid(env.CurveType) {
		return fmt.Errorf("%w: %q", ErrInvalidCurveType, env.CurveType)
	}
	c1 := curves.New(env.CurveType)
	if err := c1.UnmarshalJSON(env.C1); err != nil {
		return err
	}
	c2 := curves.New(env.CurveType)
	if err := c2.UnmarshalJSON(env.C2); err != nil {
		return err
	}
	z.CurveType = env.CurveType
	z.C1 = c1
	z.C2 = c2
	return nil
}

// String returns a string representation of the Ciphertext.
func (z *Ciphertext) String() string {
	b, err := json.Marshal(z)
	if b == nil || err != nil {
		return ""
	}
	return string(b)
}

func padCoord(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, sizeCoord)
	copy(out[sizeCoord-len(b):], b)
	return out
}
