package elgamal

import "fmt"

// ErrInvalidCurveType is returned when a ciphertext references an unsupported
// curve type.
var ErrInvalidCurveType = fmt.Errorf("invalid curve type")

// ErrInvalidCiphertext is returned when a serialized ciphertext cannot be
// decoded into curve points.
var ErrInvalidCiphertext = fmt.Errorf("invalid ciphertext")
