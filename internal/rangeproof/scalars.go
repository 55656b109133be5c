package rangeproof

import (
	"encoding/binary"
	"io"

	"github.com/gtank/ristretto255"
	"golang.org/x/crypto/sha3"
)

const nonceLabel = "ShadowWire/prover-nonces"

func scalarFromUint64(v uint64) *ristretto255.Scalar {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[:8], v)
	s := ristretto255.NewScalar()
	// Any value below 2^64 is a canonical encoding.
	_ = s.Decode(buf[:])
	return s
}

func add(x, y *ristretto255.Scalar) *ristretto255.Scalar {
	return ristretto255.NewScalar().Add(x, y)
}

func sub(x, y *ristretto255.Scalar) *ristretto255.Scalar {
	return ristretto255.NewScalar().Subtract(x, y)
}

func mul(x, y *ristretto255.Scalar) *ristretto255.Scalar {
	return ristretto255.NewScalar().Multiply(x, y)
}

func inv(x *ristretto255.Scalar) *ristretto255.Scalar {
	return ristretto255.NewScalar().Invert(x)
}

// powers returns [1, x, x^2, ..., x^(n-1)].
func powers(x *ristretto255.Scalar, n int) []*ristretto255.Scalar {
	out := make([]*ristretto255.Scalar, n)
	acc := scalarFromUint64(1)
	for i := range out {
		out[i] = acc
		acc = mul(acc, x)
	}
	return out
}

func sum(xs []*ristretto255.Scalar) *ristretto255.Scalar {
	acc := ristretto255.NewScalar()
	for _, x := range xs {
		acc = add(acc, x)
	}
	return acc
}

func innerProduct(a, b []*ristretto255.Scalar) *ristretto255.Scalar {
	acc := ristretto255.NewScalar()
	for i := range a {
		acc = add(acc, mul(a[i], b[i]))
	}
	return acc
}

// nonceSource produces the prover's secret nonces. It is seeded from the
// witness and fresh entropy, so a weak entropy source alone does not
// repeat nonces across different witnesses.
type nonceSource struct {
	xof sha3.ShakeHash
}

func newNonceSource(rng io.Reader, value uint64, blind *ristretto255.Scalar) (*nonceSource, error) {
	var seed [32]byte
	if _, err := io.ReadFull(rng, seed[:]); err != nil {
		return nil, err
	}
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], value)

	xof := sha3.NewShake256()
	xof.Write([]byte(nonceLabel))
	xof.Write(blind.Encode(nil))
	xof.Write(v[:])
	xof.Write(seed[:])
	return &nonceSource{xof: xof}, nil
}

func (n *nonceSource) scalar() *ristretto255.Scalar {
	var buf [64]byte
	n.xof.Read(buf[:])
	return ristretto255.NewScalar().FromUniformBytes(buf[:])
}

func (n *nonceSource) scalars(count int) []*ristretto255.Scalar {
	out := make([]*ristretto255.Scalar, count)
	for i := range out {
		out[i] = n.scalar()
	}
	return out
}
