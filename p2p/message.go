package p2p

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message types exchanged between relays and downstream verifiers.
const (
	MsgShieldedTx = "shielded_tx"
	MsgVerifyAck  = "verify_ack"
	MsgText       = "simple_text"
)

// Message is the generic envelope for any message sent over the network.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// --- Custom JSON marshaling for proof material ---

// Blob carries proof or commitment bytes as base64 on the wire.
type Blob []byte

// MarshalJSON implements the json.Marshaler interface.
func (b Blob) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(b) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (b *Blob) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid JSON string for Blob: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("failed to decode base64 blob: %w", err)
	}
	*b = raw
	return nil
}

// --- Payloads ---

// ShieldedTxPayload announces a shielded transaction to downstream peers.
// It carries no amount and no blinding.
type ShieldedTxPayload struct {
	TxHash     string `json:"tx_hash"`
	Proof      Blob   `json:"proof"`
	Commitment Blob   `json:"commitment"`
	BitWidth   int    `json:"bit_width"`
	Backend    string `json:"backend"`
}

// VerifyAckPayload is a verifier's verdict on a shielded transaction.
type VerifyAckPayload struct {
	TxHash     string `json:"tx_hash"`
	Valid      bool   `json:"valid"`
	VerifierID string `json:"verifier_id"`
}

// SimpleTextMessage is a free-form payload used for liveness checks.
type SimpleTextMessage struct {
	Content string `json:"content"`
}
