// innerproduct.go - Logarithmic inner-product argument.
package rangeproof

import (
	"github.com/gtank/ristretto255"
	"github.com/pkg/errors"
)

// innerProductProof shows knowledge of vectors a, b with
// P = <a, G> + <b, H> + <a, b>·Q in log2(n) rounds.
type innerProductProof struct {
	L, R []*ristretto255.Element
	A, B *ristretto255.Scalar
}

// proveInnerProduct folds the vectors in half each round until one element
// is left. The input slices are copied; Params generators are never touched.
//
// Each round:
//  1. Commit to the cross terms L and R
//  2. Draw challenge u from the transcript
//  3. Fold a, b, G, H with u and u^-1
func proveInnerProduct(tr *transcript, q *ristretto255.Element, gVec, hVec []*ristretto255.Element, aVec, bVec []*ristretto255.Scalar) *innerProductProof {
	n := len(gVec)
	g := append([]*ristretto255.Element(nil), gVec...)
	h := append([]*ristretto255.Element(nil), hVec...)
	a := append([]*ristretto255.Scalar(nil), aVec...)
	b := append([]*ristretto255.Scalar(nil), bVec...)

	tr.innerProductDomainSep(uint64(n))

	rounds := log2(n)
	proof := &innerProductProof{
		L: make([]*ristretto255.Element, 0, rounds),
		R: make([]*ristretto255.Element, 0, rounds),
	}

	for n > 1 {
		n /= 2
		aL, aR := a[:n], a[n:]
		bL, bR := b[:n], b[n:]
		gL, gR := g[:n], g[n:]
		hL, hR := h[:n], h[n:]

		cL := innerProduct(aL, bR)
		cR := innerProduct(aR, bL)

		lScalars := make([]*ristretto255.Scalar, 0, 2*n+1)
		lScalars = append(append(append(lScalars, aL...), bR...), cL)
		lPoints := make([]*ristretto255.Element, 0, 2*n+1)
		lPoints = append(append(append(lPoints, gR...), hL...), q)
		l := ristretto255.NewElement().MultiScalarMult(lScalars, lPoints)

		rScalars := make([]*ristretto255.Scalar, 0, 2*n+1)
		rScalars = append(append(append(rScalars, aR...), bL...), cR)
		rPoints := make([]*ristretto255.Element, 0, 2*n+1)
		rPoints = append(append(append(rPoints, gL...), hR...), q)
		r := ristretto255.NewElement().MultiScalarMult(rScalars, rPoints)

		proof.L = append(proof.L, l)
		proof.R = append(proof.R, r)
		tr.appendPoint("L", l)
		tr.appendPoint("R", r)

		u := tr.challengeScalar("u")
		uInv := inv(u)

		nextA := make([]*ristretto255.Scalar, n)
		nextB := make([]*ristretto255.Scalar, n)
		nextG := make([]*ristretto255.Element, n)
		nextH := make([]*ristretto255.Element, n)
		for i := 0; i < n; i++ {
			nextA[i] = add(mul(aL[i], u), mul(uInv, aR[i]))
			nextB[i] = add(mul(bL[i], uInv), mul(u, bR[i]))
			nextG[i] = ristretto255.NewElement().VarTimeMultiScalarMult(
				[]*ristretto255.Scalar{uInv, u}, []*ristretto255.Element{gL[i], gR[i]})
			nextH[i] = ristretto255.NewElement().VarTimeMultiScalarMult(
				[]*ristretto255.Scalar{u, uInv}, []*ristretto255.Element{hL[i], hR[i]})
		}
		a, b, g, h = nextA, nextB, nextG, nextH
	}

	proof.A = a[0]
	proof.B = b[0]
	return proof
}

// verificationScalars replays the transcript and returns the squared
// challenges and the folding coefficients s, where the final generator is
// sum(s_i·G_i). The matching H coefficient is s_(n-1-i) = s_i^-1.
func (p *innerProductProof) verificationScalars(n int, tr *transcript) (uSq, uInvSq, s []*ristretto255.Scalar, err error) {
	k := len(p.L)
	if len(p.R) != k || n != 1<<uint(k) {
		return nil, nil, nil, errors.Wrapf(errWidthMismatch, "%d rounds for n=%d", k, n)
	}

	tr.innerProductDomainSep(uint64(n))

	u := make([]*ristretto255.Scalar, k)
	for j := 0; j < k; j++ {
		if err := tr.validateAndAppendPoint("L", p.L[j]); err != nil {
			return nil, nil, nil, err
		}
		if err := tr.validateAndAppendPoint("R", p.R[j]); err != nil {
			return nil, nil, nil, err
		}
		u[j] = tr.challengeScalar("u")
	}

	uInv := make([]*ristretto255.Scalar, k)
	uSq = make([]*ristretto255.Scalar, k)
	uInvSq = make([]*ristretto255.Scalar, k)
	for j := range u {
		uInv[j] = inv(u[j])
		uSq[j] = mul(u[j], u[j])
		uInvSq[j] = mul(uInv[j], uInv[j])
	}

	// Round j splits on bit (k-1-j) of the index.
	s = make([]*ristretto255.Scalar, n)
	for i := 0; i < n; i++ {
		acc := scalarFromUint64(1)
		for j := 0; j < k; j++ {
			if (i>>uint(k-1-j))&1 == 1 {
				acc = mul(acc, u[j])
			} else {
				acc = mul(acc, uInv[j])
			}
		}
		s[i] = acc
	}
	return uSq, uInvSq, s, nil
}
