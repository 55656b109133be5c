// Package snark is the Groth16 range-proof backend.
//
// A value is committed as C = MiMC(value, blinding) over the BN254 scalar
// field. The circuit takes C as its only public input and proves knowledge
// of (value, blinding) opening C with value < 2^bits. One circuit and key
// pair exists per supported bit-width, so a proof made for one width never
// verifies under another.
//
// Keys come from a local Groth16 setup. This is a development trusted setup:
// whoever ran it can forge proofs.
package snark
