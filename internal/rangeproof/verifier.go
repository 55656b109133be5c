// verifier.go - Range proof verification.
package rangeproof

import (
	"github.com/gtank/ristretto255"
	"github.com/pkg/errors"
)

// verify replays the prover's transcript and checks two relations:
//
//	t_x·B + t_x_blinding·BBlinding == z²·V + δ(y,z)·B + x·T1 + x²·T2
//
// and the inner-product relation folded into a single multiscalar
// multiplication that must equal the identity.
func verify(params *Params, label string, p *Proof, commitment []byte, n int) error {
	if !validWidth(n) || n > params.MaxBits {
		return errors.Wrapf(errWidthMismatch, "bit width %d not supported", n)
	}
	if p.Rounds() != log2(n) {
		return errors.Wrapf(errWidthMismatch, "proof has %d rounds, want %d", p.Rounds(), log2(n))
	}
	v, err := DecodeCommitment(commitment)
	if err != nil {
		return err
	}

	tr := newTranscript(label)
	tr.rangeProofDomainSep(uint64(n), 1)
	tr.appendPoint("V", v)

	if err := tr.validateAndAppendPoint("A", p.A); err != nil {
		return err
	}
	if err := tr.validateAndAppendPoint("S", p.S); err != nil {
		return err
	}
	y := tr.challengeScalar("y")
	z := tr.challengeScalar("z")

	if err := tr.validateAndAppendPoint("T1", p.T1); err != nil {
		return err
	}
	if err := tr.validateAndAppendPoint("T2", p.T2); err != nil {
		return err
	}
	x := tr.challengeScalar("x")

	tr.appendScalar("t_x", p.TX)
	tr.appendScalar("t_x_blinding", p.TXBlinding)
	tr.appendScalar("e_blinding", p.EBlinding)
	w := tr.challengeScalar("w")

	uSq, uInvSq, s, err := p.innerProduct.verificationScalars(n, tr)
	if err != nil {
		return err
	}

	zz := mul(z, z)
	zzz := mul(zz, z)
	xx := mul(x, x)
	yPow := powers(y, n)
	yInvPow := powers(inv(y), n)
	twoPow := powers(scalarFromUint64(2), n)

	// δ(y,z) = (z - z²)·<1, y^n> - z³·<1, 2^n>
	delta := sub(mul(sub(z, zz), sum(yPow)), mul(zzz, sum(twoPow)))

	lhs := ristretto255.NewElement().VarTimeMultiScalarMult(
		[]*ristretto255.Scalar{p.TX, p.TXBlinding},
		[]*ristretto255.Element{params.B, params.BBlinding})
	rhs := ristretto255.NewElement().VarTimeMultiScalarMult(
		[]*ristretto255.Scalar{zz, delta, x, xx},
		[]*ristretto255.Element{v, params.B, p.T1, p.T2})
	if lhs.Equal(rhs) != 1 {
		return errors.Wrap(errInvalidProof, "polynomial commitment check")
	}

	a, b := p.innerProduct.A, p.innerProduct.B
	negZ := ristretto255.NewScalar().Negate(z)
	k := len(uSq)

	scalars := make([]*ristretto255.Scalar, 0, 4+2*n+2*k)
	points := make([]*ristretto255.Element, 0, 4+2*n+2*k)

	scalars = append(scalars,
		scalarFromUint64(1),
		x,
		ristretto255.NewScalar().Negate(p.EBlinding),
		mul(w, sub(p.TX, mul(a, b))),
	)
	points = append(points, p.A, p.S, params.BBlinding, params.B)

	for i := 0; i < n; i++ {
		scalars = append(scalars, sub(negZ, mul(a, s[i])))
		points = append(points, params.Gi[i])
	}
	for i := 0; i < n; i++ {
		sInv := s[n-1-i]
		h := add(z, mul(yInvPow[i], sub(mul(zz, twoPow[i]), mul(b, sInv))))
		scalars = append(scalars, h)
		points = append(points, params.Hi[i])
	}
	for j := 0; j < k; j++ {
		scalars = append(scalars, uSq[j], uInvSq[j])
		points = append(points, p.innerProduct.L[j], p.innerProduct.R[j])
	}

	check := ristretto255.NewElement().VarTimeMultiScalarMult(scalars, points)
	if check.Equal(ristretto255.NewElement()) != 1 {
		return errors.Wrap(errInvalidProof, "inner product check")
	}
	return nil
}
