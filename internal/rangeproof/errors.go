package rangeproof

import "github.com/pkg/errors"

var (
	// ErrParameterInitialization is fatal: the engine cannot be built.
	ErrParameterInitialization = errors.New("rangeproof: parameter initialization failed")
	// ErrProofConstruction rejects a single prove call.
	ErrProofConstruction = errors.New("rangeproof: proof construction failed")

	errMalformedProof = errors.New("rangeproof: malformed proof")
	errIdentityPoint  = errors.New("rangeproof: identity point in proof")
	errWidthMismatch  = errors.New("rangeproof: bit width mismatch")
	errInvalidProof   = errors.New("rangeproof: proof does not verify")
)
