// Package decision arbitrates between response sources for each message:
// conversation flows first, then configured responses, then the user's LLM
// provider, and finally a fallback message.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/BotRouter/internal/flow"
	"github.com/BTreeMap/BotRouter/internal/knowledge"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/responses"
)

// Fixed user facing texts.
const (
	FallbackMessage = "Désolé, je n'ai pas compris votre message. Pouvez-vous reformuler ?"
	ErrorMessage    = "Désolé, une erreur s'est produite. Veuillez réessayer."
)

// KnowledgeResults is how many items per category enrich the provider stage.
const KnowledgeResults = 3

// FlowSource runs conversation flows.
type FlowSource interface {
	HasActiveFlows(ctx context.Context) bool
	FindMatchingFlow(ctx context.Context, message string, userID int64) (int64, bool)
	ExecuteFlow(ctx context.Context, flowID int64, message string, userID int64) (*flow.Result, error)
}

// ResponseSource matches configured responses.
type ResponseSource interface {
	HasConfiguredResponses(ctx context.Context) bool
	FindMatchingResponse(ctx context.Context, message string, userID int64) *responses.Match
	ConfiguredErrorMessage(ctx context.Context, kind string) (string, bool)
	BehaviorConfig(ctx context.Context) map[string]any
}

// KnowledgeSource searches the knowledge base.
type KnowledgeSource interface {
	Search(ctx context.Context, query string, maxResults int) knowledge.Results
}

// Generator answers through an LLM provider.
type Generator interface {
	Ready(ctx context.Context, userID int64) bool
	GenerateResponse(ctx context.Context, req APIRequest) (*APIResult, error)
}

// Engine is the decision engine.
type Engine struct {
	flows     FlowSource
	responses ResponseSource
	knowledge KnowledgeSource
	api       Generator
	stats     counters
	now       func() time.Time
}

// NewEngine creates an Engine. api may be nil, in which case the provider
// stage is skipped.
func NewEngine(flows FlowSource, rs ResponseSource, ks KnowledgeSource, api Generator) *Engine {
	return &Engine{flows: flows, responses: rs, knowledge: ks, api: api, now: time.Now}
}

// Respond returns the best answer for req. It never panics and never returns
// an error: failures become an error mode response.
func (e *Engine) Respond(ctx context.Context, req models.ChatRequest) (resp models.ChatResponse) {
	start := e.now()
	requestID := uuid.NewString()
	e.stats.request()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.Respond: recovered from panic", "request_id", requestID, "panic", r, "stack", string(debug.Stack()))
			resp = models.ChatResponse{
				Message:   ErrorMessage,
				Mode:      models.ModeError,
				RequestID: requestID,
				Metadata:  models.ChatMetadata{Source: SourceError, Error: fmt.Sprint(r)},
			}
		}
		resp.Metadata.ProcessingTime = e.now().Sub(start).Seconds()
	}()

	slog.Debug("Engine.Respond: routing message", "request_id", requestID, "user_id", req.UserID)

	if res := e.tryFlow(ctx, req); res != nil {
		e.stats.answered(SourceFlow)
		slog.Info("Engine.Respond: answered by flow", "request_id", requestID, "flow", res.FlowName)
		return models.ChatResponse{
			Message:   res.Content,
			Mode:      models.ModeFlow,
			RequestID: requestID,
			Metadata:  models.ChatMetadata{Source: SourceFlow, FlowName: res.FlowName},
			Success:   true,
		}
	}

	if m := e.tryConfigured(ctx, req); m != nil {
		e.stats.answered(SourceConfigured)
		slog.Info("Engine.Respond: answered by configured response", "request_id", requestID, "type", m.Type)
		return models.ChatResponse{
			Message:   m.Content,
			Mode:      models.ModeConfigured,
			RequestID: requestID,
			Metadata:  models.ChatMetadata{Source: SourceConfigured, Confidence: m.Confidence},
			Success:   true,
		}
	}

	if out := e.tryAPI(ctx, req, requestID); out != nil {
		complexity, hasKnowledge, corrected := out.Complexity, out.HasKnowledge, out.IdentityCorrected
		meta := models.ChatMetadata{
			Source:            SourceAPI,
			Complexity:        &complexity,
			HasKnowledge:      &hasKnowledge,
			Provider:          string(out.Provider),
			Model:             out.Model,
			IdentityCorrected: &corrected,
		}
		if out.Error != "" {
			meta.Error = out.Error
			return models.ChatResponse{
				Message:   "Erreur API: " + out.Error,
				Mode:      models.ModeError,
				RequestID: requestID,
				Metadata:  meta,
			}
		}
		e.stats.answered(SourceAPI)
		usage := out.Usage
		meta.Usage = &usage
		slog.Info("Engine.Respond: answered by provider", "request_id", requestID, "provider", out.Provider)
		return models.ChatResponse{
			Message:   out.Message,
			Mode:      models.ModeUserKeys,
			RequestID: requestID,
			Metadata:  meta,
			Success:   true,
		}
	}

	slog.Warn("Engine.Respond: no response source available", "request_id", requestID)
	return models.ChatResponse{
		Message:   e.fallbackMessage(ctx),
		Mode:      models.ModeFallback,
		RequestID: requestID,
		Metadata:  models.ChatMetadata{Source: SourceFallback},
	}
}

func (e *Engine) tryFlow(ctx context.Context, req models.ChatRequest) *flow.Result {
	if e.flows == nil || !e.flows.HasActiveFlows(ctx) {
		return nil
	}
	id, ok := e.flows.FindMatchingFlow(ctx, req.Message, req.UserID)
	if !ok {
		return nil
	}
	res, err := e.flows.ExecuteFlow(ctx, id, req.Message, req.UserID)
	if err != nil {
		slog.Warn("Engine.tryFlow: flow execution failed", "flow_id", id, "error", err)
		return nil
	}
	if res == nil || res.Content == "" {
		return nil
	}
	return res
}

func (e *Engine) tryConfigured(ctx context.Context, req models.ChatRequest) *responses.Match {
	if e.responses == nil || !e.responses.HasConfiguredResponses(ctx) {
		return nil
	}
	m := e.responses.FindMatchingResponse(ctx, req.Message, req.UserID)
	if m == nil || m.Content == "" {
		return nil
	}
	return m
}

func (e *Engine) tryAPI(ctx context.Context, req models.ChatRequest, requestID string) *APIResult {
	if e.api == nil || !e.api.Ready(ctx, req.UserID) {
		return nil
	}
	apiReq := APIRequest{
		Message:   req.Message,
		UserID:    req.UserID,
		RequestID: requestID,
		History:   req.RecentHistory(),
	}
	if e.knowledge != nil {
		k := e.knowledge.Search(ctx, req.Message, KnowledgeResults)
		apiReq.Knowledge = &k
	}
	if e.responses != nil {
		apiReq.Behavior = e.responses.BehaviorConfig(ctx)
	}
	out, err := e.api.GenerateResponse(ctx, apiReq)
	if err != nil {
		slog.Warn("Engine.tryAPI: provider stage unavailable", "user_id", req.UserID, "error", err)
		return nil
	}
	if out == nil || (out.Error == "" && out.Message == "") {
		return nil
	}
	return out
}

func (e *Engine) fallbackMessage(ctx context.Context) string {
	if e.responses != nil {
		if msg, ok := e.responses.ConfiguredErrorMessage(ctx, "general"); ok {
			return msg
		}
	}
	return FallbackMessage
}

// IsReady reports whether a flow or a configured response can answer. The
// provider stage is not considered.
func (e *Engine) IsReady(ctx context.Context) bool {
	if e.flows != nil && e.flows.HasActiveFlows(ctx) {
		return true
	}
	return e.responses != nil && e.responses.HasConfiguredResponses(ctx)
}

// Statistics returns request counts and per source shares.
func (e *Engine) Statistics() Statistics {
	return e.stats.snapshot()
}

// ResetStatistics zeroes every counter.
func (e *Engine) ResetStatistics() {
	e.stats.reset()
}
