package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"shadowwire/internal/snark"
)

func keysCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate or load Groth16 range keys for every width up to --max-bits",
		Long: `Generate or load Groth16 range keys for every width up to --max-bits.

The setup runs locally, so whoever ran it could forge proofs. Use the
keys for development only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keysDir == "" {
				return errors.New("--keys-dir must not be empty")
			}
			if _, err := snark.New(maxBits, snark.WithKeysDir(keysDir), snark.WithLogger(newLogger(cmd.ErrOrStderr()))); err != nil {
				return err
			}
			for _, b := range []int{8, 16, 32, 64} {
				if b > maxBits {
					break
				}
				pk, vk := snark.KeyPaths(keysDir, b)
				fmt.Fprintf(cmd.OutOrStdout(), "%d bits: %s %s\n", b, pk, vk)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBits, "max-bits", 64, "largest width to set up")
	return cmd
}
