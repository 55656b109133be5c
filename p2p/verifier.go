package p2p

import (
	"encoding/json"
)

// Verifier checks a range proof against its commitment.
type Verifier interface {
	Name() string
	Verify(proof, commitment []byte, bits int) bool
}

// VerifyShieldedTx checks a payload at the verifier's own bit-width. The
// width and backend the sender claims must match; they are never trusted
// on their own.
func VerifyShieldedTx(v Verifier, bits int, p ShieldedTxPayload) bool {
	if p.BitWidth != bits || p.Backend != v.Name() {
		return false
	}
	return v.Verify(p.Proof, p.Commitment, bits)
}

// VerifierHandler returns a handler that verifies inbound shielded
// transactions and acknowledges each one to its sender. onResult, when set,
// sees every verdict.
func VerifierHandler(v Verifier, bits int, onResult func(ShieldedTxPayload, bool)) Handler {
	return func(n *Node, msg Message) {
		var payload ShieldedTxPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			n.logger.Warn().Err(err).Msg("bad shielded_tx payload")
			return
		}
		valid := VerifyShieldedTx(v, bits, payload)
		n.logger.Info().Str("tx_hash", payload.TxHash).Bool("valid", valid).Msg("shielded transaction checked")
		if onResult != nil {
			onResult(payload, valid)
		}

		ack := VerifyAckPayload{TxHash: payload.TxHash, Valid: valid, VerifierID: n.ID}
		// Reply off the handler goroutine so the sender's request completes.
		go func() {
			if err := n.SendMessage(msg.SenderID, MsgVerifyAck, ack); err != nil {
				n.logger.Warn().Err(err).Str("to", msg.SenderID).Msg("verify ack failed")
			}
		}()
	}
}

// AckHandler decodes verify_ack messages for fn.
func AckHandler(fn func(VerifyAckPayload)) Handler {
	return func(n *Node, msg Message) {
		var ack VerifyAckPayload
		if err := json.Unmarshal(msg.Payload, &ack); err != nil {
			n.logger.Warn().Err(err).Msg("bad verify_ack payload")
			return
		}
		fn(ack)
	}
}
