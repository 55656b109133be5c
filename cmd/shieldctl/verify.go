package main

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// errInvalid makes the command exit non-zero on a rejected proof.
var errInvalid = errors.New("proof rejected")

func verifyCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a range proof against its commitment",
		Long: `Verify a range proof against its commitment.

--bits must be the bit-width the relay is configured with. A proof is only
a statement about the width it is checked at, so verifying at a width the
prover picked proves nothing about the protocol range. The flag has no
default here and must be given explicitly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("bits") {
				return errors.New("--bits is required: pass the relay's configured bit-width")
			}
			p, err := newProver(backend, bits, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			// Undecodable input is reported like any other rejection.
			valid := false
			proof, perr := hex.DecodeString(proofHex)
			commitment, cerr := hex.DecodeString(commitmentHex)
			if perr == nil && cerr == nil {
				valid = p.Verify(proof, commitment, bits)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "valid: %t\n", valid)
			if !valid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&proofHex, "proof", "", "hex proof")
	cmd.Flags().StringVar(&commitmentHex, "commitment", "", "hex commitment")
	cmd.MarkFlagRequired("proof")
	cmd.MarkFlagRequired("commitment")
	return cmd
}
