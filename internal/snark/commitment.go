// commitment.go - Native MiMC commitments matching RangeCircuit.
package snark

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/pkg/errors"

	"shadowwire/internal/blinding"
)

// CommitmentSize is the encoded size of a commitment.
const CommitmentSize = fr.Bytes

// Commit returns MiMC(value, blind) as a field element.
func Commit(value uint64, blind *fr.Element) fr.Element {
	var v fr.Element
	v.SetUint64(value)
	vb := v.Bytes()
	bb := blind.Bytes()

	h := mimc.NewMiMC()
	h.Write(vb[:])
	h.Write(bb[:])

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// BlindingElement reduces 64 uniform bytes into the BN254 scalar field.
func BlindingElement(f blinding.Factor) *fr.Element {
	var e fr.Element
	e.SetBytes(f[:])
	return &e
}

// DecodeCommitment parses a canonical 32-byte commitment.
func DecodeCommitment(b []byte) (*fr.Element, error) {
	if len(b) != CommitmentSize {
		return nil, errors.Errorf("commitment length %d", len(b))
	}
	var e fr.Element
	if err := e.SetBytesCanonical(b); err != nil {
		return nil, errors.Wrap(err, "commitment not canonical")
	}
	return &e, nil
}
