package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MaxMessageBytes caps an inbound envelope. A 64-bit proof and its
// commitment encode to about 1 KiB.
const MaxMessageBytes = 64 << 10

// Handler processes one decoded message.
type Handler func(n *Node, msg Message)

// Node is a relay or verifier reachable over HTTP.
type Node struct {
	ID        string
	Address   string
	Peers     map[string]string // Map of Node ID to its address
	server    *http.Server
	waitGroup *sync.WaitGroup
	client    *http.Client
	logger    zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, wg *sync.WaitGroup, logger zerolog.Logger) *Node {
	if wg == nil {
		wg = &sync.WaitGroup{}
	}
	return &Node{
		ID:        id,
		Address:   address,
		Peers:     peers,
		waitGroup: wg,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger.With().Str("node", id).Logger(),
		handlers:  make(map[string]Handler),
	}
}

// RegisterHandler routes messages of msgType to h, replacing any earlier one.
func (n *Node) RegisterHandler(msgType string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[msgType] = h
}

// Handler returns the node's HTTP surface so it can be mounted elsewhere.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", n.messageHandler)
	return mux
}

// messageHandler decodes the message envelope and dispatches it by type.
func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxMessageBytes)).Decode(&msg); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			n.logger.Warn().Str("remote", r.RemoteAddr).Msg("oversized message envelope")
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		n.logger.Warn().Err(err).Msg("bad message envelope")
		return
	}

	n.logger.Debug().Str("type", msg.Type).Str("from", msg.SenderID).Msg("message received")

	n.mu.RLock()
	h, ok := n.handlers[msg.Type]
	n.mu.RUnlock()
	if !ok {
		n.logger.Warn().Str("type", msg.Type).Msg("unknown message type")
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}
	h(n, msg)

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Message received")
}

// StartServer starts the node's HTTP server in a new goroutine.
// It signals on ready once the server is actively listening.
func (n *Node) StartServer(ready chan<- struct{}) error {
	n.server = &http.Server{
		Addr:              n.Address,
		Handler:           n.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		return errors.Wrapf(err, "node %s: listen on %s", n.ID, n.Address)
	}

	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		n.logger.Info().Str("addr", n.Address).Msg("peer server starting")

		if ready != nil {
			ready <- struct{}{}
		}

		if err := n.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			n.logger.Error().Err(err).Msg("peer server failed")
		}
		n.logger.Info().Msg("peer server stopped")
	}()
	return nil
}

// Stop shuts the server down.
func (n *Node) Stop(ctx context.Context) error {
	if n.server == nil {
		return nil
	}
	return n.server.Shutdown(ctx)
}

// SendMessage sends a message to another node in the network.
// The payload can be any struct that is marshallable to JSON.
func (n *Node) SendMessage(targetID, messageType string, payload interface{}) error {
	targetAddress, ok := n.Peers[targetID]
	if !ok {
		return errors.Errorf("peer '%s' not found in directory", targetID)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	msg := Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: n.ID,
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message envelope")
	}

	n.logger.Debug().Str("type", messageType).Str("to", targetID).Str("addr", targetAddress).Msg("sending message")
	req, err := http.NewRequest(http.MethodPost, "http://"+targetAddress+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("peer returned non-OK status: %s", resp.Status)
	}

	return nil
}

// Broadcast sends the payload to every peer except this node and returns
// the per-peer failures.
func (n *Node) Broadcast(messageType string, payload interface{}) map[string]error {
	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for id := range n.Peers {
		if id == n.ID {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := n.SendMessage(id, messageType, payload); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return failures
}
