package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gtank/ristretto255"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowwire/internal/rangeproof"
)

// Helper to create a test network of nodes with unique ports
func setupTestNetwork(t *testing.T, nodeIDs []string, basePort int) map[string]*Node {
	peerDirectory := make(map[string]string)
	for i, id := range nodeIDs {
		peerDirectory[id] = fmt.Sprintf("localhost:%d", basePort+i)
	}
	nodes := make(map[string]*Node)
	var wg sync.WaitGroup
	readyCh := make(chan struct{})
	for id, addr := range peerDirectory {
		nodes[id] = NewNode(id, addr, peerDirectory, &wg, zerolog.Nop())
	}
	for _, node := range nodes {
		require.NoError(t, node.StartServer(readyCh))
	}
	for i := 0; i < len(nodes); i++ {
		<-readyCh
	}
	t.Cleanup(func() { shutdownNetwork(nodes) })
	return nodes
}

func shutdownNetwork(nodes map[string]*Node) {
	for _, n := range nodes {
		n.server.Close()
	}
}

func shieldedTx(t *testing.T, e *rangeproof.Engine, value uint64, bits int) ShieldedTxPayload {
	blind := ristretto255.NewScalar().FromUniformBytes(bytes.Repeat([]byte{7}, 64))
	proof, commitment, err := e.Prove(value, blind, bits)
	require.NoError(t, err)
	return ShieldedTxPayload{
		TxHash:     "tx_test",
		Proof:      proof,
		Commitment: commitment,
		BitWidth:   bits,
		Backend:    e.Name(),
	}
}

func TestSimpleTextMessage(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B"}, 9100)
	done := make(chan struct{}, 1) // Buffered to avoid blocking
	var once sync.Once
	nodes["B"].RegisterHandler(MsgText, func(n *Node, msg Message) {
		once.Do(func() { done <- struct{}{} })
	})
	require.NoError(t, nodes["A"].SendMessage("B", MsgText, SimpleTextMessage{Content: "hello"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestBroadcast(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B", "C"}, 9200)
	var mu sync.Mutex
	received := make(map[string]bool)
	for _, id := range []string{"B", "C"} {
		nodes[id].RegisterHandler(MsgText, func(n *Node, msg Message) {
			mu.Lock()
			received[n.ID] = true
			mu.Unlock()
		})
	}
	failures := nodes["A"].Broadcast(MsgText, SimpleTextMessage{Content: "hi all"})
	assert.Empty(t, failures)

	// Handlers run before the peer responds, so Broadcast has already waited.
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, received["B"])
	assert.True(t, received["C"])
	assert.False(t, received["A"])
}

func TestBroadcastReportsUnreachablePeers(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A"}, 9250)
	nodes["A"].Peers["ghost"] = "localhost:1"
	failures := nodes["A"].Broadcast(MsgText, SimpleTextMessage{Content: "anyone?"})
	require.Len(t, failures, 1)
	assert.Contains(t, failures, "ghost")
}

func TestShieldedTxVerifiedAndAcked(t *testing.T) {
	e, err := rangeproof.New(8)
	require.NoError(t, err)
	nodes := setupTestNetwork(t, []string{"relay", "verifier"}, 9300)

	nodes["verifier"].RegisterHandler(MsgShieldedTx, VerifierHandler(e, 8, nil))
	acks := make(chan VerifyAckPayload, 2)
	nodes["relay"].RegisterHandler(MsgVerifyAck, AckHandler(func(a VerifyAckPayload) { acks <- a }))

	good := shieldedTx(t, e, 200, 8)
	require.NoError(t, nodes["relay"].SendMessage("verifier", MsgShieldedTx, good))

	bad := shieldedTx(t, e, 17, 8)
	bad.TxHash = "tx_tampered"
	bad.Proof = append([]byte(nil), bad.Proof...)
	bad.Proof[len(bad.Proof)/2] ^= 0x01
	require.NoError(t, nodes["relay"].SendMessage("verifier", MsgShieldedTx, bad))

	verdicts := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case a := <-acks:
			assert.Equal(t, "verifier", a.VerifierID)
			verdicts[a.TxHash] = a.Valid
		case <-time.After(3 * time.Second):
			t.Fatal("Timeout waiting for verify ack")
		}
	}
	assert.Equal(t, map[string]bool{"tx_test": true, "tx_tampered": false}, verdicts)
}

func TestVerifyShieldedTxRejectsClaimMismatch(t *testing.T) {
	e, err := rangeproof.New(16)
	require.NoError(t, err)
	p := shieldedTx(t, e, 5, 8)
	assert.True(t, VerifyShieldedTx(e, 8, p))

	assert.False(t, VerifyShieldedTx(e, 16, p), "verifier width wins over claimed width")

	other := p
	other.Backend = "groth16"
	assert.False(t, VerifyShieldedTx(e, 8, other))
}

func TestBlobIsBase64OnTheWire(t *testing.T) {
	p := ShieldedTxPayload{TxHash: "tx_x", Proof: Blob{0xde, 0xad}, Commitment: Blob{0xbe, 0xef}, BitWidth: 32, Backend: "bulletproofs"}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"proof":"3q0="`)

	var back ShieldedTxPayload
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, p, back)

	var b Blob
	assert.Error(t, json.Unmarshal([]byte(`"***"`), &b))
	assert.Error(t, json.Unmarshal([]byte(`12`), &b))
}

func TestMessageHandlerRejectsBadInput(t *testing.T) {
	n := NewNode("A", "localhost:0", map[string]string{}, nil, zerolog.Nop())
	h := n.Handler()

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"unknown type", http.MethodPost, `{"type":"nope","payload":{},"senderId":"B"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/message", bytes.NewBufferString(tc.body))
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

// endlessEnvelope yields a simple_text envelope whose content never ends,
// up to limit bytes, and counts what was read.
type endlessEnvelope struct {
	head  []byte
	read  int
	limit int
}

func (e *endlessEnvelope) Read(p []byte) (int, error) {
	if e.read >= e.limit {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && e.read < e.limit {
		if e.read < len(e.head) {
			p[n] = e.head[e.read]
		} else {
			p[n] = 'a'
		}
		n++
		e.read++
	}
	return n, nil
}

func TestMessageHandlerCapsBodySize(t *testing.T) {
	n := NewNode("A", "localhost:0", map[string]string{}, nil, zerolog.Nop())
	delivered := false
	n.RegisterHandler(MsgText, func(*Node, Message) { delivered = true })

	body := &endlessEnvelope{
		head:  []byte(`{"type":"simple_text","senderId":"B","payload":{"content":"`),
		limit: 64 << 20,
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message", body)
	n.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, delivered)
	assert.Less(t, body.read, 2*MaxMessageBytes, "body must not be drained")
}

func TestMessageHandlerAcceptsProofSizedEnvelope(t *testing.T) {
	n := NewNode("A", "localhost:0", map[string]string{}, nil, zerolog.Nop())
	var got ShieldedTxPayload
	n.RegisterHandler(MsgShieldedTx, func(_ *Node, msg Message) {
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
	})

	payload, err := json.Marshal(ShieldedTxPayload{
		TxHash:     "tx_0011223344556677",
		Proof:      make([]byte, rangeproof.ProofSize(64)),
		Commitment: make([]byte, 32),
		BitWidth:   64,
		Backend:    rangeproof.BackendName,
	})
	require.NoError(t, err)
	env, err := json.Marshal(Message{Type: MsgShieldedTx, Payload: payload, SenderID: "B"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(env)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, got.Proof, rangeproof.ProofSize(64))
}

func TestSendToNonExistentPeer(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A"}, 9400)
	err := nodes["A"].SendMessage("B", MsgText, SimpleTextMessage{Content: "hello"})
	assert.Error(t, err)
}
