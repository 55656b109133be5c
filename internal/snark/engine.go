// engine.go - Groth16 range-proof engine.
package snark

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"shadowwire/internal/blinding"
	"shadowwire/internal/rangeproof"
)

// BackendName identifies this engine in responses and peer messages.
const BackendName = "groth16"

// supportedWidths mirrors the Bulletproofs engine.
var supportedWidths = []int{8, 16, 32, 64}

type rangeKeys struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Engine holds one compiled circuit and key pair per bit-width. The map is
// filled in New and only read afterwards.
type Engine struct {
	maxBits int
	keysDir string
	logger  zerolog.Logger
	keys    map[int]*rangeKeys
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeysDir persists keys under dir and reuses them on restart.
func WithKeysDir(dir string) Option {
	return func(e *Engine) { e.keysDir = dir }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New compiles the range circuit and runs (or loads) the setup for every
// supported width up to maxBits. Errors wrap
// rangeproof.ErrParameterInitialization.
func New(maxBits int, opts ...Option) (*Engine, error) {
	e := &Engine{
		maxBits: maxBits,
		logger:  zerolog.Nop(),
		keys:    make(map[int]*rangeKeys),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !supported(maxBits) {
		return nil, errors.Wrapf(rangeproof.ErrParameterInitialization, "unsupported max bit width %d", maxBits)
	}

	for _, bits := range supportedWidths {
		if bits > maxBits {
			break
		}
		circuit := RangeCircuit{Bits: bits}
		ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
		if err != nil {
			return nil, errors.Wrapf(rangeproof.ErrParameterInitialization, "compile %d-bit circuit: %v", bits, err)
		}
		pk, vk, err := SetupOrLoadKeys(ccs, e.keysDir, bits)
		if err != nil {
			return nil, errors.Wrapf(rangeproof.ErrParameterInitialization, "%d-bit keys: %v", bits, err)
		}
		e.keys[bits] = &rangeKeys{ccs: ccs, pk: pk, vk: vk}
		e.logger.Debug().Int("bits", bits).Int("constraints", ccs.GetNbConstraints()).Msg("range circuit ready")
	}
	return e, nil
}

// Name returns BackendName.
func (e *Engine) Name() string { return BackendName }

// MaxBits is the largest supported bit-width.
func (e *Engine) MaxBits() int { return e.maxBits }

// Prove returns a Groth16 proof that the committed value fits in bits bits,
// and the commitment. Errors wrap rangeproof.ErrProofConstruction.
func (e *Engine) Prove(value uint64, blind *fr.Element, bits int) (proof, commitment []byte, err error) {
	if blind == nil {
		return nil, nil, errors.Wrap(rangeproof.ErrProofConstruction, "nil blinding")
	}
	k, ok := e.keys[bits]
	if !ok {
		return nil, nil, errors.Wrapf(rangeproof.ErrProofConstruction, "bit width %d not supported (max %d)", bits, e.maxBits)
	}
	if bits < 64 && value>>uint(bits) != 0 {
		return nil, nil, errors.Wrapf(rangeproof.ErrProofConstruction, "value does not fit in %d bits", bits)
	}

	cm := Commit(value, blind)
	assignment := &RangeCircuit{
		Commitment: cm.BigInt(new(big.Int)),
		Value:      new(big.Int).SetUint64(value),
		Blinding:   blind.BigInt(new(big.Int)),
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, errors.Wrapf(rangeproof.ErrProofConstruction, "witness: %v", err)
	}
	p, err := groth16.Prove(k.ccs, k.pk, w)
	if err != nil {
		return nil, nil, errors.Wrapf(rangeproof.ErrProofConstruction, "prove: %v", err)
	}
	proof, err = encodeProof(p)
	if err != nil {
		return nil, nil, errors.Wrap(rangeproof.ErrProofConstruction, err.Error())
	}
	cmBytes := cm.Bytes()
	e.logger.Debug().Int("bits", bits).Int("proof_size", len(proof)).Msg("groth16 proof generated")
	return proof, cmBytes[:], nil
}

// ProveFactor reduces f into the BN254 scalar field and calls Prove.
func (e *Engine) ProveFactor(value uint64, f blinding.Factor, bits int) (proof, commitment []byte, err error) {
	return e.Prove(value, BlindingElement(f), bits)
}

// Verify reports whether proof shows that commitment opens to a value in
// [0, 2^bits). It never panics; malformed input returns false.
func (e *Engine) Verify(proof, commitment []byte, bits int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().Interface("panic", r).Msg("groth16 verify recovered")
			ok = false
		}
	}()

	k, found := e.keys[bits]
	if !found {
		return false
	}
	cm, err := DecodeCommitment(commitment)
	if err != nil {
		return false
	}
	p, err := decodeProof(proof)
	if err != nil {
		e.logger.Debug().Err(err).Msg("groth16 proof rejected")
		return false
	}

	public := &RangeCircuit{Commitment: cm.BigInt(new(big.Int))}
	w, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false
	}
	if err := groth16.Verify(p, k.vk, w); err != nil {
		e.logger.Debug().Err(err).Msg("groth16 proof rejected")
		return false
	}
	return true
}

func supported(bits int) bool {
	for _, w := range supportedWidths {
		if w == bits {
			return true
		}
	}
	return false
}
