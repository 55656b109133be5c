// generators.go - Deterministic public parameters.
package rangeproof

import (
	"github.com/gtank/ristretto255"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const generatorsChainLabel = "GeneratorsChain"

// Params holds the Pedersen generators (B, BBlinding) and the vector
// generators (Gi, Hi) for a single party. Params are never mutated after
// construction and may be shared across goroutines.
type Params struct {
	B         *ristretto255.Element
	BBlinding *ristretto255.Element
	Gi        []*ristretto255.Element
	Hi        []*ristretto255.Element
	MaxBits   int
}

// NewParams derives generators for proofs of up to maxBits bits.
//
// B is the ristretto255 base point. BBlinding is SHA3-512(B) mapped to the
// group, so nobody knows its discrete log relative to B. Gi and Hi are read
// from SHAKE256 chains keyed by their names.
func NewParams(maxBits int) (*Params, error) {
	if !validWidth(maxBits) {
		return nil, errors.Wrapf(ErrParameterInitialization, "unsupported max bit width %d", maxBits)
	}

	b := ristretto255.NewElement().Base()
	digest := sha3.Sum512(b.Encode(nil))
	bBlinding := ristretto255.NewElement().FromUniformBytes(digest[:])
	if bBlinding.Equal(b) == 1 || bBlinding.Equal(ristretto255.NewElement()) == 1 {
		return nil, errors.Wrap(ErrParameterInitialization, "degenerate blinding generator")
	}

	return &Params{
		B:         b,
		BBlinding: bBlinding,
		Gi:        generatorChain("G", maxBits),
		Hi:        generatorChain("H", maxBits),
		MaxBits:   maxBits,
	}, nil
}

func generatorChain(label string, n int) []*ristretto255.Element {
	shake := sha3.NewShake256()
	shake.Write([]byte(generatorsChainLabel))
	shake.Write([]byte(label))

	out := make([]*ristretto255.Element, n)
	var buf [64]byte
	for i := range out {
		shake.Read(buf[:])
		out[i] = ristretto255.NewElement().FromUniformBytes(buf[:])
	}
	return out
}

// validWidth accepts the widths a single-party proof supports.
func validWidth(bits int) bool {
	switch bits {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

func log2(n int) int {
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}
