package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/decision"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
	"github.com/BTreeMap/BotRouter/internal/responses"
	"github.com/BTreeMap/BotRouter/internal/store"
	"github.com/BTreeMap/BotRouter/internal/testutil"
)

type mockEngine struct {
	resp   models.ChatResponse
	ready  bool
	got    models.ChatRequest
	calls  int
	resets int
}

func (m *mockEngine) Respond(ctx context.Context, req models.ChatRequest) models.ChatResponse {
	m.calls++
	m.got = req
	return m.resp
}

func (m *mockEngine) IsReady(ctx context.Context) bool { return m.ready }

func (m *mockEngine) Statistics() decision.Statistics {
	return decision.Statistics{TotalRequests: 4, Sources: map[string]decision.SourceStats{
		decision.SourceFlow: {Count: 1, Percentage: 25},
	}}
}

func (m *mockEngine) ResetStatistics() { m.resets++ }

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }

func TestMessageHandler(t *testing.T) {
	engine := &mockEngine{resp: models.ChatResponse{Message: "Bonjour !", Mode: models.ModeConfigured, RequestID: "r1", Success: true}}
	s := NewServer(engine, nil, nil)

	body := `{"message":"Salut","user_id":3,"history":[{"user":"a","bot":"b"}]}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got models.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got.Message != "Bonjour !" || got.Mode != models.ModeConfigured || !got.Success {
		t.Errorf("unexpected response %+v", got)
	}
	if engine.got.UserID != 3 || len(engine.got.History) != 1 {
		t.Errorf("request not forwarded: %+v", engine.got)
	}
}

func TestMessageHandlerRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"empty message", http.MethodPost, `{"message":"   "}`, http.StatusBadRequest},
		{"too long", http.MethodPost, `{"message":"` + strings.Repeat("a", models.MaxMessageLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{}
			s := NewServer(engine, nil, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/message", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if engine.calls != 0 {
				t.Error("engine must not be called for rejected requests")
			}
			if tt.code == http.StatusBadRequest {
				testutil.AssertAPIStatus(t, rec, models.APIStatusError)
			}
		})
	}
	rec := httptest.NewRecorder()
	NewServer(&mockEngine{}, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/message", nil))
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("expected Allow header, got %q", rec.Header().Get("Allow"))
	}
}

func TestWelcomeHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	uid := int64(5)
	st.SaveSettings(&models.Settings{BotWelcome: "Bienvenue !"})
	st.SaveSettings(&models.Settings{UserID: &uid, BotWelcome: "Salut toi."})
	resolver := persona.NewResolver(st, cache.NewMemory[models.BotInfo](time.Minute))
	rm := responses.NewManager(st, st, resolver, cache.NewMemory[responses.Snapshot](time.Minute))
	s := NewServer(&mockEngine{}, rm, st)

	tests := []struct {
		query string
		code  int
		want  string
	}{
		{"", http.StatusOK, "Bienvenue !"},
		{"?user_id=5", http.StatusOK, "Salut toi."},
		{"?user_id=9", http.StatusOK, "Bienvenue !"},
		{"?user_id=abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/welcome"+tt.query, nil))
		if rec.Code != tt.code {
			t.Errorf("%q: expected %d, got %d", tt.query, tt.code, rec.Code)
			continue
		}
		if tt.want == "" {
			continue
		}
		var resp struct {
			Status string            `json:"status"`
			Result map[string]string `json:"result"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Result["message"] != tt.want {
			t.Errorf("%q: got %q, want %q", tt.query, resp.Result["message"], tt.want)
		}
	}
}

func TestStatsHandlers(t *testing.T) {
	engine := &mockEngine{}
	s := NewServer(engine, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Result decision.Statistics `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal stats: %v", err)
	}
	if resp.Result.TotalRequests != 4 || resp.Result.Sources[decision.SourceFlow].Percentage != 25 {
		t.Errorf("unexpected stats %+v", resp.Result)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/reset", nil))
	if rec.Code != http.StatusMethodNotAllowed || engine.resets != 0 {
		t.Errorf("expected reset to require POST, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats/reset", nil))
	if rec.Code != http.StatusOK || engine.resets != 1 {
		t.Errorf("expected one reset, got code %d resets %d", rec.Code, engine.resets)
	}
}

func TestClearCacheHandler(t *testing.T) {
	var cleared []string
	s := NewServer(&mockEngine{}, nil, nil,
		WithCacheClearer("bot_info", func(ctx context.Context) { cleared = append(cleared, "bot_info") }),
		WithCacheClearer("flows", func(ctx context.Context) { cleared = append(cleared, "flows") }),
	)
	rec := testutil.Serve(t, s.Handler(), http.MethodPost, "/api/cache/clear", nil)
	resp := testutil.AssertAPIStatus(t, rec, models.APIStatusOK)
	if resp.Message != "Caches cleared" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if strings.Join(cleared, ",") != "bot_info,flows" {
		t.Errorf("unexpected clear order %v", cleared)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		st     Pinger
		code   int
		status string
	}{
		{"healthy and ready", true, pinger{}, http.StatusOK, "healthy"},
		{"healthy without answers", false, pinger{}, http.StatusOK, "healthy"},
		{"store down", true, pinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&mockEngine{ready: tt.ready}, nil, tt.st)
			s.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to unmarshal health: %v", err)
			}
			if body["status"] != tt.status || body["ready"] != tt.ready || body["timestamp"] != "2024-05-01T08:00:00Z" {
				t.Errorf("unexpected health body %v", body)
			}
		})
	}
}

func TestMessageEndToEnd(t *testing.T) {
	st := store.NewInMemoryStore()
	testutil.SeedQuickResponse(t, st, "Horaires", "Ouvert de 9h à 18h.", "horaires")
	resolver := persona.NewResolver(st, cache.NewMemory[models.BotInfo](time.Minute))
	rm := responses.NewManager(st, st, resolver, cache.NewMemory[responses.Snapshot](time.Minute))
	engine := decision.NewEngine(nil, rm, nil, nil)
	h := NewServer(engine, rm, st).Handler()

	post := func(msg string) models.ChatResponse {
		t.Helper()
		rec := testutil.Serve(t, h, http.MethodPost, "/api/message", models.ChatRequest{Message: msg})
		testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, msg)
		return testutil.DecodeJSON[models.ChatResponse](t, rec)
	}

	if resp := post("Quels sont vos horaires ?"); resp.Mode != models.ModeConfigured || resp.Message != "Ouvert de 9h à 18h." {
		t.Errorf("expected configured answer, got %+v", resp)
	}
	if resp := post("Parlez-moi de la météo"); resp.Mode != models.ModeFallback || resp.Message != decision.FallbackMessage {
		t.Errorf("expected fallback, got %+v", resp)
	}

	rec := testutil.Serve(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready":true`) {
		t.Errorf("expected ready health, got %d %s", rec.Code, rec.Body.String())
	}
}
