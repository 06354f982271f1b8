package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genesis-gov/genesis/internal/audit"
	"github.com/genesis-gov/genesis/internal/config"
	"github.com/genesis-gov/genesis/internal/governance/handler"
	"github.com/genesis-gov/genesis/internal/governance/model"
	"github.com/genesis-gov/genesis/internal/governance/service"
	"github.com/genesis-gov/genesis/internal/identity"
)

const testAdminSecret = "test-admin-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RateLimitRPS: 20, AdminSecret: testAdminSecret},
		Tiers: map[model.RiskTier]config.TierPolicy{
			model.TierR0: {},
			model.TierR1: {ReviewersRequired: 1, ApprovalsRequired: 1},
			model.TierR2: {ReviewersRequired: 3, ApprovalsRequired: 2, HumanFinalGate: true},
			model.TierR3: {ReviewersRequired: 5, ApprovalsRequired: 4, HumanFinalGate: true},
		},
		Leave: config.LeavePolicy{MinQuorum: 3, MinApproveToGrant: 2, MinAdjudicatorTrust: 0.6},
		Trust: config.TrustPolicy{
			QualityWeight: 0.4, ReliabilityWeight: 0.3, VolumeWeight: 0.15, EffortWeight: 0.15,
			MaxDelta: 0.05, InitialScore: 0.5,
		},
	}
}

type testServer struct {
	router *gin.Engine
	svc    *service.Service
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := audit.NewFileLog("")
	if err != nil {
		t.Fatalf("NewFileLog: %v", err)
	}
	logger := zap.NewNop()
	svc, err := service.New(context.Background(), testConfig(), log, nil, logger)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}

	issuer := identity.NewTokenIssuer([]byte("test-jwt-secret"), "genesisd", time.Hour)
	router := gin.New()
	v1 := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(handler.RequireOperator(issuer, logger))

	handler.NewAuthHandler(issuer, testAdminSecret, logger).Register(v1)
	handler.NewSystemHandler(svc, logger).Register(v1)
	handler.NewActorHandler(svc, logger).Register(v1, protected)
	handler.NewMissionHandler(svc, logger).Register(v1, protected)
	handler.NewLeaveHandler(svc, logger).Register(v1, protected)
	handler.NewMarketHandler(svc, logger).Register(v1, protected)
	handler.NewEpochHandler(svc, logger).Register(v1, protected)

	token, err := issuer.Issue("test-operator")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testServer{router: router, svc: svc, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodPost, path, body, true)
}

func (ts *testServer) mustPost(t *testing.T, path string, body any) map[string]any {
	t.Helper()
	w := ts.post(t, path, body)
	if w.Code != http.StatusOK {
		t.Fatalf("POST %s: %d %s", path, w.Code, w.Body.String())
	}
	var res struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res.Data
}

func TestAuthTokenIssuance(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/auth/token",
		gin.H{"admin_secret": "wrong", "operator": "mallory"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/auth/token",
		gin.H{"admin_secret": testAdminSecret, "operator": "ops"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("token exchange: %d %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["token"] == "" {
		t.Fatalf("token body = %s", w.Body.String())
	}
}

func TestMutatingRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/epochs/open", gin.H{"epoch_id": "E1"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated mutation: %d", w.Code)
	}

	// Reads stay open.
	w = ts.do(t, http.MethodGet, "/api/v1/status", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("unauthenticated status: %d", w.Code)
	}
}

func TestResultStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	// No open epoch: the fail-closed gate maps to 409.
	w := ts.post(t, "/api/v1/actors", gin.H{"actor_id": "alice", "actor_kind": "human", "trust_score": 0.5})
	if w.Code != http.StatusConflict {
		t.Errorf("no-epoch mutation: %d %s", w.Code, w.Body.String())
	}

	ts.mustPost(t, "/api/v1/epochs/open", gin.H{"epoch_id": "E1"})

	// Unknown entity maps to 404.
	w = ts.post(t, "/api/v1/missions/MSN-missing/submit", gin.H{"actor_id": "alice"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown mission: %d %s", w.Code, w.Body.String())
	}

	// Invalid input maps to 400.
	w = ts.post(t, "/api/v1/actors", gin.H{"actor_id": "bot", "actor_kind": "alien"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad actor kind: %d", w.Code)
	}

	// An enum rejection is bad input even though its message starts with
	// "unknown", unlike a missing entity.
	ts.mustPost(t, "/api/v1/actors", gin.H{"actor_id": "alice", "actor_kind": "human", "trust_score": 0.5})
	w = ts.post(t, "/api/v1/missions", gin.H{"title": "x", "mission_class": "exotic", "worker_id": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad mission class: %d %s", w.Code, w.Body.String())
	}
}

func TestActorEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.mustPost(t, "/api/v1/epochs/open", gin.H{"epoch_id": "E1"})
	ts.mustPost(t, "/api/v1/actors", gin.H{"actor_id": "alice", "actor_kind": "human", "trust_score": 0.8, "region": "eu"})

	w := ts.do(t, http.MethodGet, "/api/v1/actors/alice", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("get actor: %d", w.Code)
	}
	var e model.RosterEntry
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.ActorID != "alice" {
		t.Errorf("actor body = %s", w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/api/v1/actors/alice/trust", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("get trust: %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/v1/actors/ghost", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing actor: %d", w.Code)
	}
}

func TestMissionFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.mustPost(t, "/api/v1/epochs/open", gin.H{"epoch_id": "E1"})
	ts.mustPost(t, "/api/v1/actors", gin.H{"actor_id": "worker", "actor_kind": "machine", "trust_score": 0.5})

	data := ts.mustPost(t, "/api/v1/missions", gin.H{
		"title": "Fix a typo", "mission_class": "documentation_update", "worker_id": "worker",
	})
	missionID, _ := data["mission_id"].(string)
	if missionID == "" {
		t.Fatal("no mission id in response")
	}
	ts.mustPost(t, fmt.Sprintf("/api/v1/missions/%s/submit", missionID), gin.H{"actor_id": "worker"})
	ts.mustPost(t, fmt.Sprintf("/api/v1/missions/%s/assign", missionID), gin.H{})

	w := ts.do(t, http.MethodGet, "/api/v1/missions/"+missionID, nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("get mission: %d", w.Code)
	}
	var m model.Mission
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	if m.State != model.MissionApproved {
		t.Errorf("R0 mission state = %s", m.State)
	}
}

func TestEpochAndAuditEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.mustPost(t, "/api/v1/epochs/open", gin.H{"epoch_id": "E1"})
	ts.mustPost(t, "/api/v1/epochs/close", gin.H{"beacon_round": 42})
	ts.mustPost(t, "/api/v1/epochs/open", gin.H{"epoch_id": "E2"})
	ts.mustPost(t, "/api/v1/epochs/E1/anchor", gin.H{"receipt": "rcpt-1"})

	w := ts.do(t, http.MethodGet, "/api/v1/epochs/commitments", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("commitments: %d", w.Code)
	}
	var commits struct {
		Commitments  []map[string]any `json:"commitments"`
		PreviousHash string           `json:"previous_hash"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &commits); err != nil {
		t.Fatalf("decode commitments: %v", err)
	}
	if len(commits.Commitments) != 1 || commits.PreviousHash == "" {
		t.Errorf("commitments = %+v", commits)
	}

	// Anchor without a receipt is a binding failure.
	w = ts.post(t, "/api/v1/epochs/E1/anchor", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("anchor without receipt: %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/audit/events?kind=epoch_opened", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("events: %d", w.Code)
	}
	// The wire payload is decoded raw; EventRecord's payload is typed and
	// has no unmarshaler.
	var events struct {
		Events []struct {
			EventID   string          `json:"event_id"`
			EventKind string          `json:"event_kind"`
			EventHash string          `json:"event_hash"`
			Payload   json.RawMessage `json:"payload"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) != 2 {
		t.Errorf("epoch_opened events = %d", len(events.Events))
	}
	for _, e := range events.Events {
		if e.EventKind != string(audit.KindEpochOpened) {
			t.Errorf("event %s kind = %s", e.EventID, e.EventKind)
		}
		if len(e.Payload) == 0 || e.EventHash == "" {
			t.Errorf("event %s missing payload or hash", e.EventID)
		}
	}

	w = ts.do(t, http.MethodGet, "/api/v1/audit/verify", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("verify: %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiterThrottles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RateLimiter(config.ServerConfig{RateLimitRPS: 1, RateLimitBurst: 2}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return w
	}

	for i := 0; i < 2; i++ {
		if w := get(); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst = %d", i+1, w.Code)
		}
	}
	w := get()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request past burst = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("throttled response missing Retry-After")
	}
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Zero burst falls back to twice the steady rate.
	r.Use(handler.RateLimiter(config.ServerConfig{RateLimitRPS: 1}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
