// Package testutil provides shared helpers for BotRouter tests: HTTP round
// trips against a handler and seeding of bot configuration into a store.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Serve sends one request to h and returns the recorded response. body may be
// nil, a string sent verbatim, or any value encoded as JSON.
func Serve(t TB, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		r = bytes.NewReader(MustMarshalJSON(t, b))
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// AssertHTTPStatus checks the HTTP status code.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeJSON decodes the recorded body into a T.
func DecodeJSON[T any](t TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

// AssertAPIStatus decodes a models.APIResponse envelope and checks its status.
func AssertAPIStatus(t TB, rec *httptest.ResponseRecorder, expected models.APIStatus) models.APIResponse {
	t.Helper()
	resp := DecodeJSON[models.APIResponse](t, rec)
	if resp.Status != string(expected) {
		t.Errorf("expected status %q, got %q (message %q)", expected, resp.Status, resp.Message)
	}
	return resp
}

// MustMarshalJSON marshals v and fails the test on error.
func MustMarshalJSON(t TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// SeedPersona stores the global bot identity.
func SeedPersona(t TB, st store.SettingsRepo, name, description string) *models.Settings {
	t.Helper()
	s := &models.Settings{BotName: name, BotDescription: description}
	if err := st.SaveSettings(s); err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}
	return s
}

// SeedQuickResponse stores a canned answer with comma separated triggers.
func SeedQuickResponse(t TB, st store.ResponseRepo, title, content, triggers string) *models.DefaultMessage {
	t.Helper()
	m := &models.DefaultMessage{Title: title, Content: content, Triggers: triggers}
	if err := st.SaveDefaultMessage(m); err != nil {
		t.Fatalf("failed to seed quick response: %v", err)
	}
	return m
}

// SeedMessageFlow stores a flow made of a single message node.
func SeedMessageFlow(t TB, st store.FlowRepo, name, message string, active bool) *models.FlowGraph {
	t.Helper()
	g := &models.FlowGraph{
		Flow: models.ConversationFlow{Name: name, IsActive: active},
		Nodes: []models.FlowNode{
			{ID: 1, Type: models.NodeTypeMessage, Config: models.MessageConfig{Message: message}},
		},
	}
	if err := st.SaveFlowGraph(g); err != nil {
		t.Fatalf("failed to seed flow: %v", err)
	}
	return g
}
