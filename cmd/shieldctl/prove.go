package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/spf13/cobra"

	"shadowwire/internal/blinding"
	"shadowwire/internal/shield"
)

// ProveOutput is printed by the prove command. The blinding factor is
// never part of it.
type ProveOutput struct {
	TxHash           string `json:"tx_hash"`
	ObfuscationProof string `json:"obfuscation_proof"`
	Commitment       string `json:"commitment"`
	BitWidth         int    `json:"bit_width"`
	Backend          string `json:"backend"`
}

func proveCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Commit to a value under a fresh blinding and prove its range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(cmd.ErrOrStderr())
			p, err := newProver(backend, bits, log)
			if err != nil {
				return err
			}

			f, err := blinding.Sample(rand.Reader)
			if err != nil {
				return err
			}
			defer f.Wipe()

			proof, commitment, err := p.ProveFactor(value, f, bits)
			if err != nil {
				return err
			}
			log.Debug().Int("proof_size", len(proof)).Msg("proof built")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ProveOutput{
				TxHash:           shield.TxHash(proof),
				ObfuscationProof: hex.EncodeToString(proof),
				Commitment:       hex.EncodeToString(commitment),
				BitWidth:         bits,
				Backend:          p.Name(),
			})
		},
	}
	cmd.Flags().Uint64Var(&value, "value", 0, "value to commit to")
	return cmd
}
