// blinding.go - Per-request blinding factors drawn from an injected entropy source.
package blinding

import (
	"io"

	"github.com/pkg/errors"
)

// Size is the number of uniform bytes in a Factor. 64 bytes reduce to a
// uniformly distributed scalar in both the ristretto255 and BN254 fields.
const Size = 64

// ErrEntropy is returned when the randomness source fails or runs dry.
var ErrEntropy = errors.New("blinding: entropy source unavailable")

// Factor is the raw material for one commitment's blinding scalar.
// A Factor must be used for exactly one commitment.
type Factor [Size]byte

// Sample reads a fresh Factor from r. A short read is treated as an
// entropy failure, never padded.
func Sample(r io.Reader) (Factor, error) {
	var f Factor
	if r == nil {
		return f, errors.Wrap(ErrEntropy, "nil reader")
	}
	if _, err := io.ReadFull(r, f[:]); err != nil {
		return Factor{}, errors.Wrapf(ErrEntropy, "read: %v", err)
	}
	return f, nil
}

// Bytes returns a copy of the factor bytes.
func (f *Factor) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f[:])
	return out
}

// Wipe zeroes the factor in place.
func (f *Factor) Wipe() {
	for i := range f {
		f[i] = 0
	}
}

// String never prints the secret.
func (f Factor) String() string {
	return "blinding.Factor(REDACTED)"
}

// GoString covers %#v.
func (f Factor) GoString() string {
	return f.String()
}

// MarshalText keeps factors out of JSON and structured logs.
func (f Factor) MarshalText() ([]byte, error) {
	return []byte("REDACTED"), nil
}
