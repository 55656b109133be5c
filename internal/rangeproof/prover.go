// prover.go - Single-value range proof construction.
package rangeproof

import (
	"io"

	"github.com/gtank/ristretto255"
	"github.com/pkg/errors"
)

// prove builds a proof that value lies in [0, 2^n) under commitment
// V = value·B + gamma·BBlinding.
//
// Steps:
//  1. Commit to the bit vectors a_L, a_R (A) and the blinding vectors s_L, s_R (S)
//  2. Derive y, z and commit to the t(x) coefficients t1, t2 (T1, T2)
//  3. Derive x and open t(x), l(x), r(x) at x
//  4. Prove <l, r> = t_x with the inner-product argument under Q = w·B
func prove(params *Params, rng io.Reader, label string, value uint64, gamma *ristretto255.Scalar, n int) (*Proof, *ristretto255.Element, error) {
	if gamma == nil {
		return nil, nil, errors.Wrap(ErrProofConstruction, "nil blinding")
	}
	if !validWidth(n) || n > params.MaxBits {
		return nil, nil, errors.Wrapf(ErrProofConstruction, "bit width %d not supported (max %d)", n, params.MaxBits)
	}
	if n < 64 && value>>uint(n) != 0 {
		return nil, nil, errors.Wrapf(ErrProofConstruction, "value does not fit in %d bits", n)
	}
	return buildProof(params, rng, label, value, gamma, n)
}

// buildProof runs the construction without checking value against n. Only
// the low n bits are proved, so a wider value yields a proof that fails
// verification against V.
func buildProof(params *Params, rng io.Reader, label string, value uint64, gamma *ristretto255.Scalar, n int) (*Proof, *ristretto255.Element, error) {
	nonces, err := newNonceSource(rng, value, gamma)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrProofConstruction, "nonce entropy: %v", err)
	}

	gi := params.Gi[:n]
	hi := params.Hi[:n]

	v := ristretto255.NewElement().MultiScalarMult(
		[]*ristretto255.Scalar{scalarFromUint64(value), gamma},
		[]*ristretto255.Element{params.B, params.BBlinding})

	tr := newTranscript(label)
	tr.rangeProofDomainSep(uint64(n), 1)
	tr.appendPoint("V", v)

	// Step 1: bit commitments.
	zero := ristretto255.NewScalar()
	one := scalarFromUint64(1)
	minusOne := ristretto255.NewScalar().Negate(one)
	aL := make([]*ristretto255.Scalar, n)
	aR := make([]*ristretto255.Scalar, n)
	for i := 0; i < n; i++ {
		if (value>>uint(i))&1 == 1 {
			aL[i], aR[i] = one, zero
		} else {
			aL[i], aR[i] = zero, minusOne
		}
	}

	alpha := nonces.scalar()
	a := vectorCommit(params.BBlinding, alpha, gi, hi, aL, aR)

	sL := nonces.scalars(n)
	sR := nonces.scalars(n)
	rho := nonces.scalar()
	s := vectorCommit(params.BBlinding, rho, gi, hi, sL, sR)

	tr.appendPoint("A", a)
	tr.appendPoint("S", s)

	// Step 2: polynomial coefficients.
	y := tr.challengeScalar("y")
	z := tr.challengeScalar("z")
	zz := mul(z, z)
	yPow := powers(y, n)
	twoPow := powers(scalarFromUint64(2), n)

	l0 := make([]*ristretto255.Scalar, n)
	r0 := make([]*ristretto255.Scalar, n)
	r1 := make([]*ristretto255.Scalar, n)
	for i := 0; i < n; i++ {
		l0[i] = sub(aL[i], z)
		r0[i] = add(mul(yPow[i], add(aR[i], z)), mul(zz, twoPow[i]))
		r1[i] = mul(yPow[i], sR[i])
	}
	l1 := sL

	t0 := innerProduct(l0, r0)
	t1 := add(innerProduct(l0, r1), innerProduct(l1, r0))
	t2 := innerProduct(l1, r1)

	tau1 := nonces.scalar()
	tau2 := nonces.scalar()
	bases := []*ristretto255.Element{params.B, params.BBlinding}
	t1Commit := ristretto255.NewElement().MultiScalarMult([]*ristretto255.Scalar{t1, tau1}, bases)
	t2Commit := ristretto255.NewElement().MultiScalarMult([]*ristretto255.Scalar{t2, tau2}, bases)

	tr.appendPoint("T1", t1Commit)
	tr.appendPoint("T2", t2Commit)

	// Step 3: evaluate at x.
	x := tr.challengeScalar("x")
	xx := mul(x, x)

	tauX := add(add(mul(tau2, xx), mul(tau1, x)), mul(zz, gamma))
	mu := add(alpha, mul(rho, x))
	tX := add(add(t0, mul(t1, x)), mul(t2, xx))

	lVec := make([]*ristretto255.Scalar, n)
	rVec := make([]*ristretto255.Scalar, n)
	for i := 0; i < n; i++ {
		lVec[i] = add(l0[i], mul(l1[i], x))
		rVec[i] = add(r0[i], mul(r1[i], x))
	}

	tr.appendScalar("t_x", tX)
	tr.appendScalar("t_x_blinding", tauX)
	tr.appendScalar("e_blinding", mu)

	// Step 4: inner product over G and H' = y^-i·H.
	w := tr.challengeScalar("w")
	q := ristretto255.NewElement().ScalarMult(w, params.B)

	yInvPow := powers(inv(y), n)
	hPrime := make([]*ristretto255.Element, n)
	for i := 0; i < n; i++ {
		hPrime[i] = ristretto255.NewElement().ScalarMult(yInvPow[i], hi[i])
	}

	ipp := proveInnerProduct(tr, q, gi, hPrime, lVec, rVec)

	return &Proof{
		A:            a,
		S:            s,
		T1:           t1Commit,
		T2:           t2Commit,
		TX:           tX,
		TXBlinding:   tauX,
		EBlinding:    mu,
		innerProduct: ipp,
	}, v, nil
}

// vectorCommit returns blind·h + <l, gi> + <r, hi>.
func vectorCommit(h *ristretto255.Element, blind *ristretto255.Scalar, gi, hi []*ristretto255.Element, l, r []*ristretto255.Scalar) *ristretto255.Element {
	scalars := make([]*ristretto255.Scalar, 0, 1+len(l)+len(r))
	scalars = append(append(append(scalars, blind), l...), r...)
	points := make([]*ristretto255.Element, 0, 1+len(gi)+len(hi))
	points = append(append(append(points, h), gi...), hi...)
	return ristretto255.NewElement().MultiScalarMult(scalars, points)
}
