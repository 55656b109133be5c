// Package rangeproof implements Pedersen commitments and single-value
// Bulletproofs range proofs over the ristretto255 group.
//
// An Engine owns one immutable set of public generators, sized for the
// largest bit-width the process will ever prove over. Prove commits to a
// value under a caller-supplied blinding scalar and proves that the value
// lies in [0, 2^bits). Verify checks a proof against a commitment and the
// bit-width the verifier expects.
//
// Fiat-Shamir challenges come from a merlin transcript labelled
// TranscriptLabel, so proofs made for this relay cannot be replayed in a
// protocol using a different label.
//
// Proof layout (all elements 32 bytes):
//
//	A | S | T1 | T2 | t_x | t_x_blinding | e_blinding | L0 | R0 | ... | L(k-1) | R(k-1) | a | b
//
// where k = log2(bits). The bit-width is not encoded in the proof.
package rangeproof
