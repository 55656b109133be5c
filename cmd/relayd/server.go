// server.go - HTTP surface of the relay
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"

	"shadowwire/internal/feed"
	"shadowwire/internal/shield"
	"shadowwire/p2p"
)

const (
	// Version is reported by /health and the startup banner.
	Version = "1.0"

	onlineBanner      = "ShadowWire Relay Online. Status: SECURE."
	obfuscationFailed = "Obfuscation Failed"
	maxBodyBytes      = 1 << 20
)

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	ObfuscationProof string `json:"obfuscation_proof"`
	Commitment       string `json:"commitment"`
}

// VerifyResponse is the answer to POST /verify.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// Server wires the orchestrator to HTTP. node may be nil, in which case
// nothing is forwarded.
type Server struct {
	orch    *shield.Orchestrator
	limiter *SenderRateLimiter
	metrics *MetricsCollector
	health  *HealthChecker
	node    *p2p.Node
	feed    *feed.Hub
	log     *Logger
	cors    CORSConfig

	// peerOwnListener keeps /message off the client mux.
	peerOwnListener bool
}

// NewServer creates the relay HTTP server.
func NewServer(orch *shield.Orchestrator, limiter *SenderRateLimiter, metrics *MetricsCollector,
	health *HealthChecker, node *p2p.Node, log *Logger, corsCfg CORSConfig) *Server {
	return &Server{
		orch:    orch,
		limiter: limiter,
		metrics: metrics,
		health:  health,
		node:    node,
		log:     log,
		cors:    corsCfg,
	}
}

// DetachPeerEndpoint stops Handler from mounting /message, for when the
// node serves it on its own listener.
func (s *Server) DetachPeerEndpoint() { s.peerOwnListener = true }

// AttachFeed publishes shield and verification events on /ws.
func (s *Server) AttachFeed(h *feed.Hub) { s.feed = h }

func (s *Server) publish(ev feed.Event) {
	if s.feed != nil {
		s.feed.Broadcast(ev)
	}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/shield", s.handleShield)
	mux.HandleFunc("/verify", s.handleVerify)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if s.node != nil && !s.peerOwnListener {
		mux.Handle("/message", s.node.Handler())
	}
	if s.feed != nil {
		mux.Handle("/ws", s.feed)
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.cors.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         s.cors.MaxAge,
	}).Handler(mux)
}

// RegisterPeerHandlers lets this relay verify transactions forwarded by
// other relays and count the acknowledgements it receives.
func (s *Server) RegisterPeerHandlers(v p2p.Verifier) {
	if s.node == nil {
		return
	}
	s.node.RegisterHandler(p2p.MsgShieldedTx, p2p.VerifierHandler(v, s.orch.BitWidth(), nil))
	s.node.RegisterHandler(p2p.MsgVerifyAck, p2p.AckHandler(func(ack p2p.VerifyAckPayload) {
		verdict := "valid"
		if !ack.Valid {
			verdict = "invalid"
			s.log.Warn().Str("tx_hash", ack.TxHash).Str("verifier", ack.VerifierID).Msg("peer rejected shielded transaction")
		}
		s.metrics.IncrementCounter(MetricPeerAcks, map[string]string{"verdict": verdict})
		s.publish(feed.Verified(ack.TxHash, ack.VerifierID, ack.Valid))
	}))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(onlineBanner))
}

// handleShield processes one shield request.
//
// Steps:
//  1. Decode the body and check the sender
//  2. Apply the sender's rate limit
//  3. Shield the amount and map failures to status codes
//  4. Answer, publish the event and forward the proof to peers
func (s *Server) handleShield(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Step 1
	var req shield.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.metrics.RecordShield("bad_request", 0)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SenderPubkey == "" {
		s.metrics.RecordShield("bad_request", 0)
		http.Error(w, "sender_pubkey is required", http.StatusBadRequest)
		return
	}

	// Step 2
	if !s.limiter.Allow(req.SenderPubkey) {
		s.metrics.IncrementCounter(MetricRateLimited, nil)
		s.metrics.RecordShield("rate_limited", 0)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	// Step 3
	start := time.Now()
	res, err := s.orch.Shield(r.Context(), req.SenderPubkey, req.Amount)
	s.metrics.SetGauge(MetricPoolRunning, float64(s.orch.Running()), nil)
	if err != nil {
		status, body, reason := classify(err)
		s.metrics.RecordShield(reason, 0)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("sender", req.SenderPubkey).Msg("shield failed")
		}
		http.Error(w, body, status)
		return
	}
	s.metrics.RecordShield("", time.Since(start))
	s.log.Audit("shielded", map[string]interface{}{
		"sender":  req.SenderPubkey,
		"tx_hash": res.TxHash,
		"backend": res.Backend,
		"bits":    res.BitWidth,
	})

	// Step 4
	writeJSON(w, http.StatusOK, res)
	s.publish(feed.Event{
		Type:       feed.EventShielded,
		TxHash:     res.TxHash,
		Commitment: res.Commitment,
		BitWidth:   res.BitWidth,
		Backend:    res.Backend,
		Time:       start.UTC(),
	})
	if s.node != nil {
		go s.forward(res)
	}
}

// classify maps a Shield error to status, body and metric reason.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shield.ErrAmountOutOfRange):
		return http.StatusBadRequest, "amount exceeds the supported range", "out_of_range"
	case errors.Is(err, shield.ErrRandomnessUnavailable):
		return http.StatusServiceUnavailable, "relay halted", "entropy"
	case errors.Is(err, shield.ErrOverloaded):
		return http.StatusServiceUnavailable, "relay busy, retry later", "overloaded"
	case errors.Is(err, shield.ErrClosed):
		return http.StatusServiceUnavailable, "relay shutting down", "closed"
	case errors.Is(err, shield.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "proof timed out", "timeout"
	}
	return http.StatusInternalServerError, obfuscationFailed, "construction"
}

// forward announces a shielded transaction to every peer. Failures are
// logged and counted only.
func (s *Server) forward(res *shield.Result) {
	proof, err := hex.DecodeString(res.ObfuscationProof)
	if err != nil {
		return
	}
	commitment, err := hex.DecodeString(res.Commitment)
	if err != nil {
		return
	}
	failures := s.node.Broadcast(p2p.MsgShieldedTx, p2p.ShieldedTxPayload{
		TxHash:     res.TxHash,
		Proof:      proof,
		Commitment: commitment,
		BitWidth:   res.BitWidth,
		Backend:    res.Backend,
	})
	for peer, err := range failures {
		s.metrics.IncrementCounter(MetricPeerForwardFail, map[string]string{"peer": peer})
		s.log.Warn().Err(err).Str("peer", peer).Str("tx_hash", res.TxHash).Msg("forwarding failed")
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start := time.Now()
	valid := s.orch.Verify(req.ObfuscationProof, req.Commitment)
	s.metrics.RecordVerify(valid, time.Since(start))
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: valid})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health.CheckHealth()
	status := http.StatusOK
	if h.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, CreateHealthResponse(h))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.SetGauge(MetricPoolRunning, float64(s.orch.Running()), nil)
	writeJSON(w, http.StatusOK, s.metrics.GetMetricsSummary())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
