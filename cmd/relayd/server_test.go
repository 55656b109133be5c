package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowwire/internal/blinding"
	"shadowwire/internal/feed"
	"shadowwire/internal/rangeproof"
	"shadowwire/internal/shield"
	"shadowwire/p2p"
)

var (
	engineOnce sync.Once
	engine     *rangeproof.Engine
	engineErr  error
)

func sharedEngine(t *testing.T) *rangeproof.Engine {
	engineOnce.Do(func() { engine, engineErr = rangeproof.New(64) })
	require.NoError(t, engineErr)
	return engine
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy device gone") }

type brokenProver struct{}

func (brokenProver) Name() string { return "broken" }
func (brokenProver) MaxBits() int { return 64 }
func (brokenProver) ProveFactor(uint64, blinding.Factor, int) ([]byte, []byte, error) {
	return nil, nil, errors.Wrap(rangeproof.ErrProofConstruction, "inner product failed")
}
func (brokenProver) Verify([]byte, []byte, int) bool { return false }

type testRelay struct {
	srv     *Server
	metrics *MetricsCollector
	logs    *syncBuffer
	handler http.Handler
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type relayOpts struct {
	prover  shield.Prover
	entropy io.Reader
	bits    int
	rate    float64
	burst   int
	queue   int
	node    *p2p.Node
	feed    *feed.Hub
}

func newTestRelay(t *testing.T, o relayOpts) *testRelay {
	t.Helper()
	if o.prover == nil {
		o.prover = sharedEngine(t)
	}
	if o.entropy == nil {
		o.entropy = rand.Reader
	}
	if o.bits == 0 {
		o.bits = 32
	}
	if o.rate == 0 {
		o.rate, o.burst = 100, 100
	}
	if o.queue == 0 {
		o.queue = 64
	}

	logs := &syncBuffer{}
	logger := &Logger{Logger: zerolog.New(logs), audit: zerolog.New(logs)}

	orch, err := shield.New(o.prover, o.entropy, shield.Config{
		BitWidth: o.bits, Workers: 2, Timeout: 10 * time.Second, QueueSize: o.queue,
	}, logger.Logger)
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	limiter, err := NewSenderRateLimiter(o.rate, o.burst, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })

	metrics := NewMetricsCollector()
	health := NewHealthChecker(Version)
	health.RegisterComponent("entropy", entropyCheck(orch, o.entropy))
	health.RegisterComponent("pool", poolCheck(orch, 2))

	cfg := DefaultConfig()
	srv := NewServer(orch, limiter, metrics, health, o.node, logger, cfg.HTTP.CORS)
	if o.feed != nil {
		srv.AttachFeed(o.feed)
	}
	srv.RegisterPeerHandlers(o.prover)
	return &testRelay{srv: srv, metrics: metrics, logs: logs, handler: srv.Handler()}
}

func (r *testRelay) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.handler.ServeHTTP(rec, req)
	return rec
}

var txHashPattern = regexp.MustCompile(`^tx_[0-9a-f]{16}$`)

func TestRootBanner(t *testing.T) {
	r := newTestRelay(t, relayOpts{})

	rec := r.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ShadowWire Relay Online. Status: SECURE.", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, r.do(http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, r.do(http.MethodPost, "/", "").Code)
}

func TestShieldAliceAndVerify(t *testing.T) {
	r := newTestRelay(t, relayOpts{})

	rec := r.do(http.MethodPost, "/shield", `{"sender_pubkey":"alice","amount":4200,"proof_nullifier":"n-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res shield.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "SHIELDED", res.Status)
	assert.Regexp(t, txHashPattern, res.TxHash)
	assert.Len(t, res.ObfuscationProof, 2*rangeproof.ProofSize(32))
	assert.Len(t, res.Commitment, 64)
	assert.Equal(t, 32, res.BitWidth)
	assert.Equal(t, rangeproof.BackendName, res.Backend)

	body, _ := json.Marshal(VerifyRequest{ObfuscationProof: res.ObfuscationProof, Commitment: res.Commitment})
	rec = r.do(http.MethodPost, "/verify", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	proof, _ := hex.DecodeString(res.ObfuscationProof)
	proof[len(proof)-1] ^= 0x01
	body, _ = json.Marshal(VerifyRequest{ObfuscationProof: hex.EncodeToString(proof), Commitment: res.Commitment})
	rec = r.do(http.MethodPost, "/verify", string(body))
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())

	rec = r.do(http.MethodPost, "/verify", `{"obfuscation_proof":"zz","commitment":"00"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())

	logs := r.logs.String()
	assert.Contains(t, logs, res.TxHash)
	assert.NotContains(t, logs, "amount")
	assert.NotContains(t, logs, "blinding")
	assert.Contains(t, logs, `"event":"shielded"`)
}

func TestShieldBadRequests(t *testing.T) {
	r := newTestRelay(t, relayOpts{})
	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "amount=5", http.StatusBadRequest},
		{"negative amount", http.MethodPost, `{"sender_pubkey":"a","amount":-1}`, http.StatusBadRequest},
		{"fractional amount", http.MethodPost, `{"sender_pubkey":"a","amount":1.5}`, http.StatusBadRequest},
		{"missing sender", http.MethodPost, `{"amount":5}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.do(tc.method, "/shield", tc.body).Code)
		})
	}
}

func TestShieldOutOfRange(t *testing.T) {
	r := newTestRelay(t, relayOpts{bits: 8})
	rec := r.do(http.MethodPost, "/shield", `{"sender_pubkey":"bob","amount":256}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), r.metrics.Counter(MetricShieldFailure, map[string]string{"reason": "out_of_range"}))

	rec = r.do(http.MethodPost, "/shield", `{"sender_pubkey":"bob","amount":255}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShieldConstructionFailure(t *testing.T) {
	r := newTestRelay(t, relayOpts{prover: brokenProver{}})
	rec := r.do(http.MethodPost, "/shield", `{"sender_pubkey":"carol","amount":7}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Obfuscation Failed", strings.TrimSpace(rec.Body.String()))
}

func TestShieldEntropyFailureHalts(t *testing.T) {
	r := newTestRelay(t, relayOpts{entropy: failingReader{}})
	for i := 0; i < 2; i++ {
		rec := r.do(http.MethodPost, "/shield", `{"sender_pubkey":"dave","amount":1}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	rec := r.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		Status string       `json:"status"`
		Data   SystemHealth `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, Unhealthy, resp.Data.OverallStatus)
}

func TestShieldBurstBeyondWorkersWaits(t *testing.T) {
	r := newTestRelay(t, relayOpts{})

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"sender_pubkey":"sender-%d","amount":%d}`, i, 100+i)
			codes[i] = r.do(http.MethodPost, "/shield", body).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	assert.Equal(t, int64(n), r.metrics.Counter(MetricShieldSuccess, nil))
}

func TestShieldRateLimitedPerSender(t *testing.T) {
	r := newTestRelay(t, relayOpts{rate: 0.001, burst: 1})
	body := `{"sender_pubkey":"erin","amount":3}`
	assert.Equal(t, http.StatusOK, r.do(http.MethodPost, "/shield", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, r.do(http.MethodPost, "/shield", body).Code)
	assert.Equal(t, http.StatusOK, r.do(http.MethodPost, "/shield", `{"sender_pubkey":"frank","amount":3}`).Code)
	assert.Equal(t, int64(1), r.metrics.Counter(MetricRateLimited, nil))
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRelay(t, relayOpts{})
	require.Equal(t, http.StatusOK, r.do(http.MethodPost, "/shield", `{"sender_pubkey":"gina","amount":9}`).Code)

	rec := r.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string       `json:"status"`
		Data   SystemHealth `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, Version, resp.Data.Version)
	require.Len(t, resp.Data.Components, 2)
	assert.Equal(t, "entropy", resp.Data.Components[0].Name)
	assert.Equal(t, "pool", resp.Data.Components[1].Name)

	rec = r.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Counters   map[string]int64              `json:"counters"`
		Gauges     map[string]float64            `json:"gauges"`
		Histograms map[string]map[string]float64 `json:"histograms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.Counters[MetricShieldSuccess])
	assert.Equal(t, int64(1), summary.Counters[MetricShieldRequests])
	assert.Equal(t, float64(1), summary.Histograms[MetricProofGeneration]["count"])
	assert.Contains(t, summary.Gauges, MetricPoolRunning)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRelay(t, relayOpts{})

	req := httptest.NewRequest(http.MethodOptions, "/shield", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodOptions, "/shield", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestShieldForwardsToVerifierPeer(t *testing.T) {
	e := sharedEngine(t)
	peers := map[string]string{}

	verifier := p2p.NewNode("verifier", "", peers, nil, zerolog.Nop())
	verifier.RegisterHandler(p2p.MsgShieldedTx, p2p.VerifierHandler(e, 32, nil))
	verifierTS := httptest.NewServer(verifier.Handler())
	defer verifierTS.Close()

	node := p2p.NewNode("relay", "", peers, nil, zerolog.Nop())
	r := newTestRelay(t, relayOpts{node: node})
	relayTS := httptest.NewServer(r.handler)
	defer relayTS.Close()

	peers["verifier"] = verifierTS.Listener.Addr().String()
	peers["relay"] = relayTS.Listener.Addr().String()

	resp, err := http.Post(relayTS.URL+"/shield", "application/json",
		strings.NewReader(`{"sender_pubkey":"alice","amount":4200}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return r.metrics.Counter(MetricPeerAcks, map[string]string{"verdict": "valid"}) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, r.metrics.Counter(MetricPeerForwardFail, map[string]string{"peer": "verifier"}))
}

func TestDetachedPeerEndpointIsNotMounted(t *testing.T) {
	node := p2p.NewNode("relay", "", map[string]string{}, nil, zerolog.Nop())
	r := newTestRelay(t, relayOpts{node: node})
	r.srv.DetachPeerEndpoint()
	h := r.srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "mounted before detaching")
}

func TestRunServesSeparatePeerEndpointAndStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Listen = "127.0.0.1:9610"
	cfg.Node.Listen = "127.0.0.1:9611"
	cfg.Peers = map[string]string{"other": "127.0.0.1:9612"}
	cfg.Relay.BitWidth = 8
	logger := &Logger{Logger: zerolog.Nop(), audit: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger, rand.Reader) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.HTTP.Listen + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	resp, err := http.Post("http://"+cfg.Node.Listen+"/message", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "peer endpoint on its own listener")

	resp, err = http.Post("http://"+cfg.HTTP.Listen+"/message", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "not on the client listener")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return")
	}
	_, err = http.Post("http://"+cfg.Node.Listen+"/message", "application/json", strings.NewReader("{"))
	assert.Error(t, err, "peer endpoint stopped")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.Wrap(shield.ErrAmountOutOfRange, "exceeds 8 bits"), http.StatusBadRequest},
		{shield.ErrRandomnessUnavailable, http.StatusServiceUnavailable},
		{shield.ErrOverloaded, http.StatusServiceUnavailable},
		{shield.ErrClosed, http.StatusServiceUnavailable},
		{errors.Wrap(shield.ErrTimeout, "context deadline exceeded"), http.StatusGatewayTimeout},
		{errors.Wrap(rangeproof.ErrProofConstruction, "bad witness"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestEngineSelfTestAndCheck(t *testing.T) {
	e := sharedEngine(t)
	st, err := runSelfTest(e, rand.Reader, 32)
	require.NoError(t, err)
	status, msg := engineCheck(e, st)()
	assert.Equal(t, Healthy, status)
	assert.Contains(t, msg, "bulletproofs ready at 32 bits")

	st.proof[0] ^= 0x01
	status, _ = engineCheck(e, st)()
	assert.Equal(t, Unhealthy, status)

	_, err = runSelfTest(brokenProver{}, rand.Reader, 32)
	assert.Error(t, err)
	_, err = runSelfTest(e, failingReader{}, 32)
	assert.True(t, errors.Is(err, blinding.ErrEntropy))
}

func TestNewProverSelectsBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.MaxBitWidth = 8
	p, err := newProver(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, rangeproof.BackendName, p.Name())
	assert.Equal(t, "CRYPTO_MODE: SOVEREIGN (Bulletproofs Active)", cryptoMode(p.Name()))
	assert.Equal(t, "CRYPTO_MODE: SOVEREIGN (Groth16 Active)", cryptoMode("groth16"))
}

func TestShieldPublishesFeedEvent(t *testing.T) {
	hub := feed.NewHub(zerolog.Nop(), &websocket.Upgrader{
		CheckOrigin: feed.OriginChecker([]string{"http://localhost:5173"}),
	}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	r := newTestRelay(t, relayOpts{feed: hub})
	ts := httptest.NewServer(r.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws",
		http.Header{"Origin": []string{"http://localhost:5173"}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := r.do(http.MethodPost, "/shield", `{"sender_pubkey":"alice","amount":4200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res shield.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var raw map[string]interface{}
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, feed.EventShielded, raw["type"])
	assert.Equal(t, res.TxHash, raw["tx_hash"])
	assert.Equal(t, res.Commitment, raw["commitment"])
	assert.NotContains(t, raw, "amount")
}
