// proof.go - Range proof structure and its byte codec.
package rangeproof

import (
	"github.com/gtank/ristretto255"
	"github.com/pkg/errors"
)

const (
	elementSize = 32
	// fixedElements counts A, S, T1, T2, t_x, t_x_blinding, e_blinding, a, b.
	fixedElements = 9
	maxRounds     = 6
)

// Proof is a single-value Bulletproofs range proof.
type Proof struct {
	A, S, T1, T2 *ristretto255.Element

	TX         *ristretto255.Scalar
	TXBlinding *ristretto255.Scalar
	EBlinding  *ristretto255.Scalar

	innerProduct *innerProductProof
}

// ProofSize is the encoded size of a proof over bits bits.
func ProofSize(bits int) int {
	return (fixedElements + 2*log2(bits)) * elementSize
}

// Bytes serializes the proof.
func (p *Proof) Bytes() []byte {
	out := make([]byte, 0, (fixedElements+2*len(p.innerProduct.L))*elementSize)
	out = p.A.Encode(out)
	out = p.S.Encode(out)
	out = p.T1.Encode(out)
	out = p.T2.Encode(out)
	out = p.TX.Encode(out)
	out = p.TXBlinding.Encode(out)
	out = p.EBlinding.Encode(out)
	for i := range p.innerProduct.L {
		out = p.innerProduct.L[i].Encode(out)
		out = p.innerProduct.R[i].Encode(out)
	}
	out = p.innerProduct.A.Encode(out)
	out = p.innerProduct.B.Encode(out)
	return out
}

// Rounds is the number of inner-product rounds, log2 of the bit-width.
func (p *Proof) Rounds() int {
	return len(p.innerProduct.L)
}

// ProofFromBytes parses a proof. Every point must be a canonical ristretto255
// encoding and every scalar must be canonical.
func ProofFromBytes(b []byte) (*Proof, error) {
	if len(b)%elementSize != 0 {
		return nil, errors.Wrapf(errMalformedProof, "length %d is not a multiple of %d", len(b), elementSize)
	}
	count := len(b) / elementSize
	if count < fixedElements || (count-fixedElements)%2 != 0 {
		return nil, errors.Wrapf(errMalformedProof, "unexpected element count %d", count)
	}
	rounds := (count - fixedElements) / 2
	if rounds == 0 || rounds > maxRounds {
		return nil, errors.Wrapf(errMalformedProof, "unexpected round count %d", rounds)
	}

	r := &reader{buf: b}
	p := &Proof{innerProduct: &innerProductProof{
		L: make([]*ristretto255.Element, rounds),
		R: make([]*ristretto255.Element, rounds),
	}}
	p.A = r.point()
	p.S = r.point()
	p.T1 = r.point()
	p.T2 = r.point()
	p.TX = r.scalar()
	p.TXBlinding = r.scalar()
	p.EBlinding = r.scalar()
	for i := 0; i < rounds; i++ {
		p.innerProduct.L[i] = r.point()
		p.innerProduct.R[i] = r.point()
	}
	p.innerProduct.A = r.scalar()
	p.innerProduct.B = r.scalar()
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// DecodeCommitment parses a 32-byte compressed commitment.
func DecodeCommitment(b []byte) (*ristretto255.Element, error) {
	if len(b) != elementSize {
		return nil, errors.Wrapf(errMalformedProof, "commitment length %d", len(b))
	}
	v := ristretto255.NewElement()
	if err := v.Decode(b); err != nil {
		return nil, errors.Wrap(errMalformedProof, err.Error())
	}
	return v, nil
}

// reader walks the proof in 32-byte steps and keeps the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) next() []byte {
	chunk := r.buf[r.off : r.off+elementSize]
	r.off += elementSize
	return chunk
}

func (r *reader) point() *ristretto255.Element {
	chunk := r.next()
	e := ristretto255.NewElement()
	if r.err == nil {
		if err := e.Decode(chunk); err != nil {
			r.err = errors.Wrapf(errMalformedProof, "point at offset %d", r.off-elementSize)
		}
	}
	return e
}

func (r *reader) scalar() *ristretto255.Scalar {
	chunk := r.next()
	s := ristretto255.NewScalar()
	if r.err == nil {
		if err := s.Decode(chunk); err != nil {
			r.err = errors.Wrapf(errMalformedProof, "scalar at offset %d", r.off-elementSize)
		}
	}
	return s
}
