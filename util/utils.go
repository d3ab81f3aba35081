// Package util holds small helpers shared by tests and commands.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// RandomBytes returns n bytes from the system entropy source. Panics if the
// source fails, which only happens on a broken platform.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomHex returns the hex encoding of n random bytes.
func RandomHex(n int) string {
	return hex.EncodeToString(RandomBytes(n))
}

// RandomInt returns a uniform random integer in [min, max).
func RandomInt(min, max int) int {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		panic(err)
	}
	return int(num.Int64()) + min
}
