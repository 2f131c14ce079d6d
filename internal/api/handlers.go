package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// messageHandler routes one chat message through the decision engine
// (POST /api/message). Engine failures are reported in the chat response,
// never as a 5xx.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messageHandler: processing message request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messageHandler: validation failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	resp := s.engine.Respond(r.Context(), req)
	slog.Info("Server.messageHandler: message answered", "user_id", req.UserID, "mode", resp.Mode, "request_id", resp.RequestID)
	writeJSONResponse(w, http.StatusOK, resp)
}

// welcomeHandler returns the welcome message (GET /api/welcome?user_id=).
func (s *Server) welcomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var userID int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			slog.Warn("Server.welcomeHandler: invalid user id", "user_id", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid user_id"))
			return
		}
		userID = id
	}
	msg := models.DefaultBotWelcome
	if s.welcome != nil {
		msg = s.welcome.WelcomeMessage(r.Context(), userID)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"message": msg}))
}

// statsHandler returns decision statistics (GET /api/stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Statistics()))
}

// resetStatsHandler zeroes decision statistics (POST /api/stats/reset).
func (s *Server) resetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.engine.ResetStatistics()
	slog.Info("Server.resetStatsHandler: statistics reset")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Statistics reset", nil))
}

// clearCacheHandler drops every registered cache (POST /api/cache/clear).
// Writers call it after changing settings, responses or flows.
func (s *Server) clearCacheHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cleared := make([]string, 0, len(s.opts.Clearers))
	for _, c := range s.opts.Clearers {
		c.Clear(r.Context())
		cleared = append(cleared, c.Name)
	}
	slog.Info("Server.clearCacheHandler: caches cleared", "caches", cleared)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Caches cleared", cleared))
}

// healthHandler reports store health and whether the engine can answer
// without a provider (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"ready":     s.engine.IsReady(ctx),
	}

	if s.st != nil {
		if err := s.st.Ping(); err != nil {
			slog.Warn("Server.healthHandler: store ping failed", "error", err)
			healthData["status"] = "degraded"
			healthData["error"] = "Store unavailable"
		}
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
