package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"shadowwire/internal/shield"
)

func shieldCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shield",
		Short: "Ask a relay to shield an amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := time.ParseDuration(timeout)
			if err != nil {
				return errors.Wrap(err, "invalid --timeout")
			}
			res, err := requestShield(&http.Client{Timeout: d}, relayURL, shield.Request{
				SenderPubkey: sender,
				Amount:       amount,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&relayURL, "relay", "http://localhost:8080", "relay base URL")
	cmd.Flags().StringVar(&sender, "sender", "", "sender public key")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to shield")
	cmd.Flags().StringVar(&timeout, "timeout", "60s", "request timeout")
	cmd.MarkFlagRequired("sender")
	return cmd
}

// requestShield posts req to the relay's /shield endpoint.
func requestShield(client *http.Client, base string, req shield.Request) (*shield.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(strings.TrimRight(base, "/")+"/shield", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "relay unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("relay returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var res shield.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "bad relay response")
	}
	return &res, nil
}
