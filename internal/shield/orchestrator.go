// orchestrator.go - Shielding requests on a bounded worker pool.
package shield

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"shadowwire/internal/blinding"
)

// Config fixes the protocol bit-width and the pool limits.
type Config struct {
	BitWidth int
	Workers  int
	Timeout  time.Duration
	// QueueSize bounds the requests waiting for a free worker. Zero rejects
	// a request as soon as every worker is busy.
	QueueSize int
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	prover Prover
	rand   io.Reader
	cfg    Config
	pool   *ants.Pool
	logger zerolog.Logger

	halted   atomic.Bool
	inFlight atomic.Int64
}

// New wires a prover to an entropy source. rand must be cryptographically
// secure in production; tests may pass a seeded reader.
func New(prover Prover, rand io.Reader, cfg Config, logger zerolog.Logger) (*Orchestrator, error) {
	if prover == nil {
		return nil, errors.New("shield: nil prover")
	}
	if rand == nil {
		return nil, errors.Wrap(ErrRandomnessUnavailable, "nil entropy source")
	}
	if cfg.BitWidth <= 0 || cfg.BitWidth > prover.MaxBits() {
		return nil, errors.Errorf("shield: bit width %d outside (0, %d]", cfg.BitWidth, prover.MaxBits())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	o := &Orchestrator{
		prover: prover,
		rand:   rand,
		cfg:    cfg,
		logger: logger.With().Str("component", "shield").Logger(),
	}
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithNonblocking(cfg.QueueSize == 0),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(r interface{}) {
			o.logger.Error().Interface("panic", r).Msg("prover panicked")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "shield: worker pool")
	}
	o.pool = pool
	return o, nil
}

type outcome struct {
	proof      []byte
	commitment []byte
	err        error
}

// Shield commits to amount under a fresh blinding factor and proves it fits
// in the configured bit-width.
//
// Steps:
//  1. Reject amounts wider than the bit-width
//  2. Sample a fresh blinding factor; a failure halts intake
//  3. Prove on the worker pool, queueing for a worker and waiting at most
//     Timeout in total
//  4. Package the proof, commitment and display identifier
func (o *Orchestrator) Shield(ctx context.Context, sender string, amount uint64) (*Result, error) {
	if o.halted.Load() {
		return nil, ErrRandomnessUnavailable
	}
	if o.pool.IsClosed() {
		return nil, ErrClosed
	}
	log := o.logger.With().Str("sender", sender).Logger()

	// Step 1: Range precondition
	bits := o.cfg.BitWidth
	if bits < 64 && amount>>uint(bits) != 0 {
		log.Warn().Int("bits", bits).Msg("amount rejected: exceeds bit width")
		return nil, errors.Wrapf(ErrAmountOutOfRange, "exceeds %d bits", bits)
	}

	// Step 2: Blinding factor
	factor, err := blinding.Sample(o.rand)
	if err != nil {
		o.halted.Store(true)
		log.Error().Err(err).Msg("entropy source failed, halting intake")
		return nil, errors.Wrap(ErrRandomnessUnavailable, err.Error())
	}

	// Step 3: Prove off the request path
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	o.inFlight.Inc()
	task := func() {
		defer o.inFlight.Dec()
		defer factor.Wipe()
		// Abandoned while queued.
		if ctx.Err() != nil {
			return
		}
		proof, commitment, err := o.prover.ProveFactor(amount, factor, bits)
		done <- outcome{proof: proof, commitment: commitment, err: err}
	}

	// Submit blocks while the queue has room, so it runs beside the wait.
	submitted := make(chan error, 1)
	go func() {
		err := o.pool.Submit(task)
		if err != nil {
			o.inFlight.Dec()
			factor.Wipe()
		}
		submitted <- err
	}()

	var out outcome
wait:
	for {
		select {
		case err := <-submitted:
			if err == nil {
				submitted = nil
				continue
			}
			switch {
			case errors.Is(err, ants.ErrPoolOverload):
				log.Warn().Msg("worker queue full")
				return nil, ErrOverloaded
			case errors.Is(err, ants.ErrPoolClosed):
				return nil, ErrClosed
			}
			return nil, errors.Wrap(err, "shield: submit")
		case out = <-done:
			break wait
		case <-ctx.Done():
			log.Warn().Dur("timeout", o.cfg.Timeout).Msg("proof abandoned")
			return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
		}
	}
	if out.err != nil {
		log.Error().Err(out.err).Str("backend", o.prover.Name()).Msg("proof construction failed")
		return nil, out.err
	}

	// Step 4: Response
	result := &Result{
		Status:           StatusShielded,
		TxHash:           TxHash(out.proof),
		ObfuscationProof: hex.EncodeToString(out.proof),
		Commitment:       hex.EncodeToString(out.commitment),
		BitWidth:         bits,
		Backend:          o.prover.Name(),
	}
	log.Info().
		Str("backend", result.Backend).
		Int("bits", bits).
		Int("proof_size", len(out.proof)).
		Str("tx_hash", result.TxHash).
		Msg("transaction shielded")
	return result, nil
}

// Verify checks a hex proof against a hex commitment at the configured
// bit-width. Bad hex is reported the same way as an invalid proof.
func (o *Orchestrator) Verify(proofHex, commitmentHex string) bool {
	proof, err := hex.DecodeString(proofHex)
	if err != nil {
		return false
	}
	commitment, err := hex.DecodeString(commitmentHex)
	if err != nil {
		return false
	}
	return o.prover.Verify(proof, commitment, o.cfg.BitWidth)
}

// Halted reports whether an entropy failure stopped intake.
func (o *Orchestrator) Halted() bool { return o.halted.Load() }

// BitWidth is the protocol bit-width.
func (o *Orchestrator) BitWidth() int { return o.cfg.BitWidth }

// Backend names the prover.
func (o *Orchestrator) Backend() string { return o.prover.Name() }

// Running is the number of live pool workers, idle ones included.
func (o *Orchestrator) Running() int { return o.pool.Running() }

// Queued is the number of requests waiting for a free worker.
func (o *Orchestrator) Queued() int { return o.pool.Waiting() }

// InFlight counts proofs accepted and not yet finished, queued and
// abandoned ones included.
func (o *Orchestrator) InFlight() int { return int(o.inFlight.Load()) }

// Close stops accepting work. Proofs already running finish in the
// background.
func (o *Orchestrator) Close() {
	o.pool.Release()
}
