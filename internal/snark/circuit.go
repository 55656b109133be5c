// circuit.go - Range circuit over a MiMC commitment.
package snark

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// RangeCircuit proves Commitment = MiMC(Value, Blinding) and Value < 2^Bits.
type RangeCircuit struct {
	Commitment frontend.Variable `gnark:",public"`

	Value    frontend.Variable
	Blinding frontend.Variable

	Bits int `gnark:"-"`
}

// Define declares the circuit constraints.
func (c *RangeCircuit) Define(api frontend.API) error {
	// Step 1: Value decomposes into Bits boolean wires
	api.ToBinary(c.Value, c.Bits)

	// Step 2: Recompute the commitment
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(c.Value, c.Blinding)
	api.AssertIsEqual(c.Commitment, hasher.Sum())
	return nil
}
