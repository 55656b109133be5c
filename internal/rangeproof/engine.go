// engine.go - Commitment & proof engine shared by every request.
package rangeproof

import (
	"crypto/rand"
	"io"

	"github.com/gtank/ristretto255"
	"github.com/rs/zerolog"

	"shadowwire/internal/blinding"
)

// BackendName identifies this engine in responses and peer messages.
const BackendName = "bulletproofs"

// Engine proves and verifies range proofs against one immutable Params.
// An Engine is safe for concurrent use.
type Engine struct {
	params *Params
	label  string
	rand   io.Reader
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom sets the entropy mixed into prover nonces. Defaults to crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTranscriptLabel overrides the domain-separation label. Proofs only
// verify under the label they were made with.
func WithTranscriptLabel(label string) Option {
	return func(e *Engine) { e.label = label }
}

// New builds the generators for proofs of up to maxBits bits.
// The error wraps ErrParameterInitialization.
func New(maxBits int, opts ...Option) (*Engine, error) {
	params, err := NewParams(maxBits)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		params: params,
		label:  TranscriptLabel,
		rand:   rand.Reader,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger.Debug().Int("max_bits", maxBits).Str("label", e.label).Msg("range proof generators ready")
	return e, nil
}

// Name returns BackendName.
func (e *Engine) Name() string { return BackendName }

// MaxBits is the largest supported bit-width.
func (e *Engine) MaxBits() int { return e.params.MaxBits }

// Params exposes the shared generators.
func (e *Engine) Params() *Params { return e.params }

// Commit returns value·B + blind·BBlinding, compressed.
func (e *Engine) Commit(value uint64, blind *ristretto255.Scalar) []byte {
	v := ristretto255.NewElement().MultiScalarMult(
		[]*ristretto255.Scalar{scalarFromUint64(value), blind},
		[]*ristretto255.Element{e.params.B, e.params.BBlinding})
	return v.Encode(nil)
}

// Prove returns a proof that value fits in bits bits, and the commitment it
// is bound to. The caller must keep the commitment; the proof alone cannot
// be verified. Errors wrap ErrProofConstruction.
func (e *Engine) Prove(value uint64, blind *ristretto255.Scalar, bits int) (proof, commitment []byte, err error) {
	p, v, err := prove(e.params, e.rand, e.label, value, blind, bits)
	if err != nil {
		return nil, nil, err
	}
	proof = p.Bytes()
	e.logger.Debug().Int("bits", bits).Int("proof_size", len(proof)).Msg("range proof generated")
	return proof, v.Encode(nil), nil
}

// ProveFactor reduces f to a scalar and calls Prove.
func (e *Engine) ProveFactor(value uint64, f blinding.Factor, bits int) (proof, commitment []byte, err error) {
	return e.Prove(value, BlindingScalar(f), bits)
}

// Verify reports whether proof shows that commitment opens to a value in
// [0, 2^bits). Malformed input and invalid proofs both return false.
func (e *Engine) Verify(proof, commitment []byte, bits int) bool {
	p, err := ProofFromBytes(proof)
	if err != nil {
		e.logger.Debug().Err(err).Msg("range proof rejected")
		return false
	}
	if err := verify(e.params, e.label, p, commitment, bits); err != nil {
		e.logger.Debug().Err(err).Msg("range proof rejected")
		return false
	}
	return true
}

// BlindingScalar maps 64 uniform bytes onto a ristretto255 scalar.
func BlindingScalar(f blinding.Factor) *ristretto255.Scalar {
	return ristretto255.NewScalar().FromUniformBytes(f[:])
}

