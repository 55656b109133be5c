package feed

import "time"

// Event types.
const (
	EventShielded = "shielded"
	EventVerified = "verified"
)

// Event is one public relay event. It never carries an amount.
type Event struct {
	Type       string    `json:"type"`
	TxHash     string    `json:"tx_hash"`
	Commitment string    `json:"commitment,omitempty"`
	BitWidth   int       `json:"bit_width,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	Valid      *bool     `json:"valid,omitempty"`
	Verifier   string    `json:"verifier,omitempty"`
	Time       time.Time `json:"time"`
}

// Verified builds a peer verdict event.
func Verified(txHash, verifier string, valid bool) Event {
	return Event{Type: EventVerified, TxHash: txHash, Verifier: verifier, Valid: &valid, Time: time.Now().UTC()}
}
