package shield

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"shadowwire/internal/blinding"
	"shadowwire/internal/rangeproof"
)

// StatusShielded marks a successful result.
const StatusShielded = "SHIELDED"

var (
	// ErrAmountOutOfRange rejects amounts wider than the configured bit-width
	// before any proving work starts.
	ErrAmountOutOfRange = errors.Wrap(rangeproof.ErrProofConstruction, "amount out of range")
	// ErrRandomnessUnavailable halts intake for good.
	ErrRandomnessUnavailable = errors.New("shield: randomness unavailable, intake halted")
	// ErrTimeout means the result was abandoned; the proof may still finish.
	ErrTimeout = errors.New("shield: proof timed out")
	// ErrOverloaded means every worker is busy.
	ErrOverloaded = errors.New("shield: worker pool overloaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("shield: orchestrator closed")
)

// Prover is a range-proof backend.
type Prover interface {
	Name() string
	MaxBits() int
	ProveFactor(value uint64, f blinding.Factor, bits int) (proof, commitment []byte, err error)
	Verify(proof, commitment []byte, bits int) bool
}

// Request is the inbound shield request. ProofNullifier is accepted and
// ignored.
type Request struct {
	SenderPubkey   string `json:"sender_pubkey"`
	Amount         uint64 `json:"amount"`
	ProofNullifier string `json:"proof_nullifier"`
}

// Result is the outbound shield response.
type Result struct {
	Status           string `json:"status"`
	TxHash           string `json:"tx_hash"`
	ObfuscationProof string `json:"obfuscation_proof"`
	Commitment       string `json:"commitment"`
	BitWidth         int    `json:"bit_width"`
	Backend          string `json:"backend"`
}

// TxHash derives the display identifier "tx_" + 16 hex chars from the
// proof bytes. It is a label, not a settlement hash.
func TxHash(proof []byte) string {
	digest := sha3.Sum256(proof)
	return "tx_" + hex.EncodeToString(digest[:8])
}
