package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/identity"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/metrics"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

type wsHarness struct {
	eng   *engine.Engine
	store *policy.Store
	base  string
	ws    string
}

// testServer spins up an in-process HTTP server with a full engine
// behind it and returns the websocket and HTTP endpoints.
func testServer(t *testing.T, mutate func(*policy.Document)) *wsHarness {
	t.Helper()
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.json")
	doc := policy.DefaultDocument()
	if mutate != nil {
		mutate(doc)
	}
	if err := policy.Save(policyPath, doc); err != nil {
		t.Fatalf("save policy: %v", err)
	}
	store := policy.NewStore(policyPath)
	if _, err := store.Load(); err != nil {
		t.Fatalf("load policy: %v", err)
	}

	sink, err := audit.Open(filepath.Join(dir, "decisions.log"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	reg := prometheus.NewRegistry()
	eng := engine.New(engine.Config{
		Store:        store,
		Consent:      consent.NewMemoryStore(0, 0),
		Sink:         sink,
		Logger:       logging.Discard(),
		Metrics:      metrics.New(reg),
		Identity:     identity.Identity{ID: "install-test"},
		RetryBackoff: time.Millisecond,
	})

	srv := New(Config{Metrics: reg}, eng, store, sink, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &wsHarness{
		eng:   eng,
		store: store,
		base:  ts.URL,
		ws:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/page",
	}
}

// dialPage connects a fake page session and completes the handshake.
func dialPage(t *testing.T, h *wsHarness, tabID string) (*websocket.Conn, model.HelloAck) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.ws, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	env, err := model.Marshal(model.TypeHello, model.Hello{TabID: tabID})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	var ackEnv model.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ackEnv); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ackEnv.Type != model.TypeHelloAck {
		t.Fatalf("first frame = %q, want hello_ack", ackEnv.Type)
	}
	var ack model.HelloAck
	if err := json.Unmarshal(ackEnv.Data, &ack); err != nil {
		t.Fatal(err)
	}
	return conn, ack
}

func readFrame(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	var env model.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return env
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	env, err := model.Marshal(msgType, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

// expectSilence fails if a frame arrives before the window closes. It
// poisons the connection's read deadline, so call it last.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	var env model.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected frame %q", env.Type)
	}
}

func TestHandshake(t *testing.T) {
	h := testServer(t, nil)
	_, ack := dialPage(t, h, "")

	if ack.TabID == "" {
		t.Error("server did not assign a tab id")
	}
	if ack.ProfileID != "balanced" {
		t.Errorf("ProfileID = %q, want balanced", ack.ProfileID)
	}
	if !strings.HasPrefix(ack.PolicyHash, "sha256:") {
		t.Errorf("PolicyHash = %q", ack.PolicyHash)
	}
}

func TestHandshakeKeepsClientTabID(t *testing.T) {
	h := testServer(t, nil)
	_, ack := dialPage(t, h, "tab-77")
	if ack.TabID != "tab-77" {
		t.Errorf("TabID = %q, want tab-77", ack.TabID)
	}
}

func TestNavigationDeliversDirective(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	send(t, conn, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})

	env := readFrame(t, conn)
	if env.Type != model.TypeDirective {
		t.Fatalf("frame = %q, want directive", env.Type)
	}
	var d model.Directive
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatal(err)
	}
	if d.Reason != model.ReasonDomain || d.Risk != 40 {
		t.Errorf("directive = %+v", d)
	}
	if d.Context.Host != "chatgpt.com" {
		t.Errorf("Host = %q", d.Context.Host)
	}
}

func TestPINCheckRoundTrip(t *testing.T) {
	h := testServer(t, func(doc *policy.Document) { doc.AdminPIN = "4312" })
	conn, _ := dialPage(t, h, "t1")

	send(t, conn, model.TypePINCheck, model.PINCheck{PIN: "0000"})
	env := readFrame(t, conn)
	if env.Type != model.TypePINResult {
		t.Fatalf("frame = %q, want pin_result", env.Type)
	}
	var res model.PINResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.OK {
		t.Error("wrong pin verified")
	}

	send(t, conn, model.TypePINCheck, model.PINCheck{PIN: "4312"})
	env = readFrame(t, conn)
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Error("correct pin rejected")
	}
}

func TestDecisionGrantsConsent(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	send(t, conn, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})
	if env := readFrame(t, conn); env.Type != model.TypeDirective {
		t.Fatalf("frame = %q", env.Type)
	}

	send(t, conn, model.TypeDecision, model.DecisionReport{
		URL: "https://chatgpt.com/", Action: model.ActionProceed,
	})
	// Signals on the consented slot stay silent.
	send(t, conn, model.TypeSignals, model.SignalReport{
		URL: "https://chatgpt.com/", Signals: []string{"chat_input"},
	})
	expectSilence(t, conn, 300*time.Millisecond)
}

func TestSessionTabIDOverridesPayload(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	// The page claims to be another tab; the directive still lands on
	// this session.
	send(t, conn, model.TypeNav, model.Nav{TabID: "t9", URL: "https://chatgpt.com/"})
	env := readFrame(t, conn)
	if env.Type != model.TypeDirective {
		t.Fatalf("frame = %q, want directive on the registered session", env.Type)
	}
}

func TestPolicyChangeBroadcastsTeardown(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	h.eng.OnPolicyChanged(context.Background(), h.store.Current())

	env := readFrame(t, conn)
	if env.Type != model.TypeTeardown {
		t.Fatalf("frame = %q, want teardown", env.Type)
	}
	var td model.Teardown
	if err := json.Unmarshal(env.Data, &td); err != nil {
		t.Fatal(err)
	}
	if td.Reason != "policy_changed" {
		t.Errorf("Reason = %q", td.Reason)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	if err := conn.WriteJSON(model.Envelope{Type: "nonsense", Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	// The session survives and keeps working.
	send(t, conn, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})
	if env := readFrame(t, conn); env.Type != model.TypeDirective {
		t.Errorf("frame = %q, want directive after bad frame", env.Type)
	}
}

func TestHealthz(t *testing.T) {
	h := testServer(t, nil)
	dialPage(t, h, "t1")

	resp, err := http.Get(h.base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status     string `json:"status"`
		Tabs       int    `json:"tabs"`
		PolicyHash string `json:"policy_hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Tabs != 1 {
		t.Errorf("healthz = %+v", body)
	}
	if !strings.HasPrefix(body.PolicyHash, "sha256:") {
		t.Errorf("PolicyHash = %q", body.PolicyHash)
	}
}

func TestPolicyEndpointRedactsPIN(t *testing.T) {
	h := testServer(t, func(doc *policy.Document) { doc.AdminPIN = "4312" })

	resp, err := http.Get(h.base + "/api/policy")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(body), "4312") {
		t.Error("policy endpoint leaked the PIN")
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["pin_configured"] != true {
		t.Errorf("pin_configured = %v", raw["pin_configured"])
	}
}

func TestExportEndpoint(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")

	send(t, conn, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})
	if env := readFrame(t, conn); env.Type != model.TypeDirective {
		t.Fatalf("frame = %q", env.Type)
	}

	resp, err := http.Get(h.base + "/api/export?kind=domain_detected")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []audit.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Host != "chatgpt.com" {
		t.Errorf("export = %+v", entries)
	}

	// A filter matching nothing yields an empty array, not null.
	resp2, err := http.Get(h.base + "/api/export?kind=prompt")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("empty export = %q, want []", body)
	}

	resp3, err := http.Get(h.base + "/api/export?from=not-a-time")
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("bad from param: status = %d, want 400", resp3.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := testServer(t, nil)
	conn, _ := dialPage(t, h, "t1")
	send(t, conn, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})
	if env := readFrame(t, conn); env.Type != model.TypeDirective {
		t.Fatalf("frame = %q", env.Type)
	}

	resp, err := http.Get(h.base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "tabwarden_prompts_total") {
		t.Error("metrics output missing tabwarden_prompts_total")
	}
}

func TestReconnectDisplacesOldSession(t *testing.T) {
	h := testServer(t, nil)
	old, _ := dialPage(t, h, "t1")
	fresh, _ := dialPage(t, h, "t1")

	send(t, fresh, model.TypeNav, model.Nav{URL: "https://chatgpt.com/"})
	if env := readFrame(t, fresh); env.Type != model.TypeDirective {
		t.Errorf("fresh session frame = %q", env.Type)
	}

	// The displaced socket is closed by the hub.
	old.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env model.Envelope
	if err := old.ReadJSON(&env); err == nil && env.Type == model.TypeDirective {
		t.Error("directive went to the displaced session")
	}
}
