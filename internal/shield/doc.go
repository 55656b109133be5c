// Package shield turns one (sender, amount) pair into one shielded result:
// a fresh blinding factor, a range proof over the amount's commitment, and
// a display identifier derived from the proof.
//
// The amount and the blinding never leave this package in any log line or
// result field.
package shield
