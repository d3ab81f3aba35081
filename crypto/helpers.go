// Package crypto provides shared helpers for the cryptographic packages.
package crypto

import "math/big"

// BigToFF reduces v into the finite field of the given order. Values already
// in [0, field) are returned untouched; everything else is reduced mod field.
func BigToFF(field, v *big.Int) *big.Int {
	if v.Sign() >= 0 && v.Cmp(field) < 0 {
		return v
	}
	return new(big.Int).Mod(v, field)
}
