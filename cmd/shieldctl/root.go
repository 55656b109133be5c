package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shadowwire/internal/rangeproof"
	"shadowwire/internal/shield"
	"shadowwire/internal/snark"
)

var (
	// shared flags
	backend string
	bits    int
	keysDir string
	verbose bool

	// proveCMD flags
	value uint64

	// verifyCMD flags
	proofHex      string
	commitmentHex string

	// shieldCMD flags
	relayURL string
	sender   string
	amount   uint64
	timeout  string

	// keysCMD flags
	maxBits int
)

func ShieldCtlCMD() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "shieldctl",
		Short:         "ShadowWire range proof command",
		Long:          "Prove, verify and shield amounts with Pedersen commitments and range proofs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&backend, "backend", rangeproof.BackendName, "proof backend (bulletproofs or groth16)")
	rootCmd.PersistentFlags().IntVar(&bits, "bits", 32, "range proof bit-width (8, 16, 32 or 64)")
	rootCmd.PersistentFlags().StringVar(&keysDir, "keys-dir", "keys", "Groth16 key directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	// commit and prove locally
	rootCmd.AddCommand(proveCMD())

	// check a proof against its commitment
	rootCmd.AddCommand(verifyCMD())

	// send an amount to a relay
	rootCmd.AddCommand(shieldCMD())

	// run the Groth16 setup ahead of time
	rootCmd.AddCommand(keysCMD())

	return rootCmd
}

func newLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
}

// newProver builds the backend named by --backend, supporting widths up to maxWidth.
func newProver(name string, maxWidth int, log zerolog.Logger) (shield.Prover, error) {
	switch name {
	case rangeproof.BackendName:
		return rangeproof.New(maxWidth, rangeproof.WithLogger(log))
	case snark.BackendName:
		return snark.New(maxWidth, snark.WithKeysDir(keysDir), snark.WithLogger(log))
	}
	return nil, errors.Errorf("unknown backend %q", name)
}
