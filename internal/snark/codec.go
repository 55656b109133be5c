// codec.go - Compact Groth16 proof encoding.
package snark

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/pkg/errors"
)

// ProofSize is Ar (G1) | Bs (G2) | Krs (G1), all compressed.
const ProofSize = bn254.SizeOfG1AffineCompressed*2 + bn254.SizeOfG2AffineCompressed

var errMalformedProof = errors.New("snark: malformed proof")

// encodeProof writes the three proof points. RangeCircuit has no
// commitments, so nothing else is needed.
func encodeProof(p groth16.Proof) ([]byte, error) {
	proof, ok := p.(*groth16_bn254.Proof)
	if !ok {
		return nil, errors.Errorf("unexpected proof type %T", p)
	}
	ar := proof.Ar.Bytes()
	bs := proof.Bs.Bytes()
	krs := proof.Krs.Bytes()

	out := make([]byte, 0, ProofSize)
	out = append(out, ar[:]...)
	out = append(out, bs[:]...)
	out = append(out, krs[:]...)
	return out, nil
}

// decodeProof parses and subgroup-checks the three proof points.
func decodeProof(b []byte) (*groth16_bn254.Proof, error) {
	if len(b) != ProofSize {
		return nil, errors.Wrapf(errMalformedProof, "length %d", len(b))
	}
	g1 := bn254.SizeOfG1AffineCompressed
	g2 := bn254.SizeOfG2AffineCompressed

	var proof groth16_bn254.Proof
	if _, err := proof.Ar.SetBytes(b[:g1]); err != nil {
		return nil, errors.Wrap(errMalformedProof, "Ar")
	}
	if _, err := proof.Bs.SetBytes(b[g1 : g1+g2]); err != nil {
		return nil, errors.Wrap(errMalformedProof, "Bs")
	}
	if _, err := proof.Krs.SetBytes(b[g1+g2:]); err != nil {
		return nil, errors.Wrap(errMalformedProof, "Krs")
	}
	return &proof, nil
}
