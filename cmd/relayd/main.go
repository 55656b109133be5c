// main.go - ShadowWire relay daemon.
//
// The relay accepts shield requests over HTTP, commits to each amount under
// a fresh blinding factor and proves the committed amount fits the
// configured bit-width. The response carries the proof and commitment but
// never the blinding. Successful proofs are forwarded to configured peers,
// which verify them and acknowledge.
//
// Usage:
//   relayd --config relay.yaml
//   SHADOWWIRE_RELAY__BACKEND=groth16 relayd --relay.bit_width 64
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"shadowwire/internal/feed"
	"shadowwire/internal/rangeproof"
	"shadowwire/internal/shield"
	"shadowwire/internal/snark"
	"shadowwire/p2p"
)

const (
	// senderIdle is how long an idle sender keeps its rate-limit bucket.
	senderIdle = 10 * time.Minute

	feedQueueSize = 256
)

func main() {
	fs := pflag.NewFlagSet("relayd", pflag.ExitOnError)
	RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	path, _ := fs.GetString("config")
	cfg, err := LoadConfig(path, fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, rand.Reader); err != nil {
		if errors.Is(err, rangeproof.ErrParameterInitialization) {
			logger.Fatal().Err(err).Msg("parameter initialization failed")
		}
		logger.Error().Err(err).Msg("relay stopped")
		logger.Close()
		os.Exit(1)
	}
}

// newProver builds the configured backend.
func newProver(cfg *Config, log zerolog.Logger) (shield.Prover, error) {
	if cfg.Relay.Backend == snark.BackendName {
		return snark.New(cfg.Relay.MaxBitWidth,
			snark.WithKeysDir(cfg.Relay.KeysDir),
			snark.WithLogger(log.With().Str("component", "snark").Logger()))
	}
	return rangeproof.New(cfg.Relay.MaxBitWidth,
		rangeproof.WithLogger(log.With().Str("component", "rangeproof").Logger()))
}

func cryptoMode(backend string) string {
	if backend == snark.BackendName {
		return "CRYPTO_MODE: SOVEREIGN (Groth16 Active)"
	}
	return "CRYPTO_MODE: SOVEREIGN (Bulletproofs Active)"
}

// run starts the relay and blocks until ctx is done.
//
// Steps:
//  1. Build the prover and self-test it
//  2. Start the orchestrator, limiter, metrics and health checks
//  3. Serve HTTP and the event feed; the peer endpoint shares the listener
//     unless node.listen gives it its own
//  4. Shut down gracefully
func run(ctx context.Context, cfg *Config, logger *Logger, entropy io.Reader) error {
	logger.Info().Msg("ShadowWire Relay v" + Version + " starting")

	// Step 1: Prover
	prover, err := newProver(cfg, logger.Logger)
	if err != nil {
		return err
	}
	logger.Info().Msg(cryptoMode(prover.Name()))
	if prover.Name() == snark.BackendName {
		logger.Warn().Str("keys_dir", cfg.Relay.KeysDir).Msg("groth16 keys come from a local setup; not for production use")
	}

	st, err := runSelfTest(prover, entropy, cfg.Relay.BitWidth)
	if err != nil {
		return errors.Wrap(err, "engine self-test")
	}

	// Step 2: Orchestrator and supporting services
	orch, err := shield.New(prover, entropy, shield.Config{
		BitWidth:  cfg.Relay.BitWidth,
		Workers:   cfg.Relay.MaxConcurrency,
		Timeout:   cfg.Relay.Timeout,
		QueueSize: cfg.Relay.QueueSize,
	}, logger.Logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	limiter, err := NewSenderRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst, senderIdle)
	if err != nil {
		return err
	}
	defer limiter.Close()

	metrics := NewMetricsCollector()
	health := NewHealthChecker(Version)
	health.RegisterComponent("engine", engineCheck(prover, st))
	health.RegisterComponent("entropy", entropyCheck(orch, entropy))
	health.RegisterComponent("pool", poolCheck(orch, cfg.Relay.MaxConcurrency))

	var node *p2p.Node
	if len(cfg.Peers) > 0 {
		addr := cfg.HTTP.Listen
		if cfg.Node.Listen != "" {
			addr = cfg.Node.Listen
		}
		node = p2p.NewNode(cfg.Node.ID, addr, cfg.Peers, nil, logger.Logger)
	}

	hub := feed.NewHub(logger.Logger, &websocket.Upgrader{
		CheckOrigin: feed.OriginChecker(cfg.HTTP.CORS.AllowedOrigins),
	}, feedQueueSize)
	go hub.Run(ctx)

	srv := NewServer(orch, limiter, metrics, health, node, logger, cfg.HTTP.CORS)
	srv.AttachFeed(hub)
	srv.RegisterPeerHandlers(prover)
	if node != nil && cfg.Node.Listen != "" {
		srv.DetachPeerEndpoint()
		ready := make(chan struct{}, 1)
		if err := node.StartServer(ready); err != nil {
			return err
		}
		<-ready
	}

	// Step 3: Serve
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTP.Listen).
			Str("backend", prover.Name()).
			Int("bits", cfg.Relay.BitWidth).
			Int("peers", len(cfg.Peers)).
			Msg("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Step 4: Shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.Timeout)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	if node != nil {
		if stopErr := node.Stop(shutdownCtx); stopErr != nil && err == nil {
			err = errors.Wrap(stopErr, "peer endpoint")
		}
	}
	return err
}
