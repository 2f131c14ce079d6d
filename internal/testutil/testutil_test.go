package testutil

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

type recorderT struct {
	failed bool
	fatal  bool
	msg    string
}

func (r *recorderT) Helper() {}

func (r *recorderT) Errorf(format string, args ...any) {
	r.failed = true
	r.msg = fmt.Sprintf(format, args...)
}

func (r *recorderT) Fatalf(format string, args ...any) {
	r.failed = true
	r.fatal = true
	r.msg = fmt.Sprintf(format, args...)
}

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","message":%q}`, r.Method+" "+r.URL.Path+" "+string(body))
	})
}

func TestServe(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"no body", nil, "GET /x "},
		{"raw string", `{"a":1}`, `GET /x {"a":1}`},
		{"json value", models.ChatRequest{Message: "Salut"}, `GET /x {"message":"Salut"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Serve(t, echoHandler(), http.MethodGet, "/x", tt.body)
			resp := AssertAPIStatus(t, rec, models.APIStatusOK)
			if resp.Message != tt.want {
				t.Errorf("got %q, want %q", resp.Message, tt.want)
			}
		})
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name             string
		expected, actual int
		shouldFail       bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorderT{}
			AssertHTTPStatus(r, tt.expected, tt.actual, "ctx")
			if r.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%s)", r.failed, tt.shouldFail, r.msg)
			}
		})
	}
}

func TestAssertAPIStatusMismatch(t *testing.T) {
	rec := Serve(t, echoHandler(), http.MethodGet, "/", nil)
	r := &recorderT{}
	AssertAPIStatus(r, rec, models.APIStatusError)
	if !r.failed || r.fatal {
		t.Errorf("expected a non-fatal failure, got %+v", r)
	}
}

func TestDecodeJSONInvalid(t *testing.T) {
	rec := Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}), http.MethodGet, "/", nil)
	r := &recorderT{}
	DecodeJSON[models.APIResponse](r, rec)
	if !r.fatal {
		t.Error("expected fatal failure for invalid JSON")
	}
}

func TestSeedHelpers(t *testing.T) {
	st := store.NewInMemoryStore()

	s := SeedPersona(t, st, "Léa", "Conseillère.")
	global, err := st.GetGlobalSettings()
	if err != nil || global == nil || global.ID != s.ID || global.BotName != "Léa" {
		t.Errorf("unexpected global settings %+v (%v)", global, err)
	}

	SeedQuickResponse(t, st, "Horaires", "9h-18h", "horaires,ouverture")
	if n, err := st.CountDefaultMessages(); err != nil || n != 1 {
		t.Errorf("expected one quick response, got %d (%v)", n, err)
	}

	g := SeedMessageFlow(t, st, "Accueil", "Bienvenue", true)
	active, err := st.ListActiveFlows()
	if err != nil || len(active) != 1 || active[0].ID != g.Flow.ID {
		t.Errorf("expected seeded flow to be active, got %+v (%v)", active, err)
	}
}
