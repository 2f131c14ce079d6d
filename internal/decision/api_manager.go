package decision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/BotRouter/internal/credentials"
	"github.com/BTreeMap/BotRouter/internal/genai"
	"github.com/BTreeMap/BotRouter/internal/knowledge"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
	"github.com/BTreeMap/BotRouter/internal/prompt"
)

// CredentialSource resolves a user's provider credentials.
type CredentialSource interface {
	UserAPIConfig(ctx context.Context, userID int64) (*credentials.APIConfig, error)
}

// PromptBuilder assembles provider prompts.
type PromptBuilder interface {
	Build(ctx context.Context, message string, session prompt.Session) (prompt.Prompts, prompt.Metadata)
}

// Dispatcher calls a provider.
type Dispatcher interface {
	Generate(ctx context.Context, req genai.Request) genai.Result
}

// APIRequest is the input of the provider stage.
type APIRequest struct {
	Message   string
	UserID    int64
	RequestID string
	History   []models.Exchange
	Knowledge *knowledge.Results
	Behavior  map[string]any
}

// APIResult is the corrected provider answer with its prompt metadata.
type APIResult struct {
	Message           string
	Error             string
	Provider          models.Provider
	Model             string
	Usage             models.Usage
	Complexity        int
	HasKnowledge      bool
	IdentityCorrected bool
}

// APIManager builds prompts, calls the user's provider and corrects the
// bot's identity in the reply.
type APIManager struct {
	credentials CredentialSource
	builder     PromptBuilder
	dispatcher  Dispatcher
}

// NewAPIManager creates an APIManager.
func NewAPIManager(creds CredentialSource, builder PromptBuilder, dispatcher Dispatcher) *APIManager {
	return &APIManager{credentials: creds, builder: builder, dispatcher: dispatcher}
}

// Ready reports whether userID has usable provider credentials.
func (m *APIManager) Ready(ctx context.Context, userID int64) bool {
	_, err := m.credentials.UserAPIConfig(ctx, userID)
	if err != nil && !errors.Is(err, credentials.ErrNoProvider) && !errors.Is(err, credentials.ErrNoAPIKey) {
		slog.Warn("APIManager.Ready: credentials unavailable", "user_id", userID, "error", err)
	}
	return err == nil
}

// GenerateResponse answers req through the user's provider. Provider failures
// are reported in APIResult.Error; the returned error covers missing
// credentials only.
func (m *APIManager) GenerateResponse(ctx context.Context, req APIRequest) (*APIResult, error) {
	cfg, err := m.credentials.UserAPIConfig(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	prompts, meta := m.builder.Build(ctx, req.Message, prompt.Session{
		UserID:    req.UserID,
		History:   req.History,
		Knowledge: req.Knowledge,
	})

	maxTokens, temperature := genai.Budget(meta.Complexity)
	maxTokens, temperature = applyBehavior(req.Behavior, maxTokens, temperature)
	if meta.Personal != nil {
		maxTokens = int64(meta.Personal.MaxTokens)
		temperature = meta.Personal.Temperature
	}

	res := m.dispatcher.Generate(ctx, genai.Request{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		System:      prompts.System,
		User:        prompts.User,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		UserID:      req.UserID,
		RequestID:   req.RequestID,
	})

	out := &APIResult{
		Error:        res.Error,
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		Usage:        res.Usage,
		Complexity:   meta.Complexity,
		HasKnowledge: meta.HasKnowledge,
	}
	if res.Failed() {
		return out, nil
	}
	out.Message, out.IdentityCorrected = persona.CorrectIdentity(res.Message, meta.Bot)
	if out.IdentityCorrected {
		slog.Info("APIManager.GenerateResponse: identity corrected", "user_id", req.UserID, "provider", cfg.Provider)
	}
	return out, nil
}

// applyBehavior lets the behavior configuration cap max_tokens and override
// the temperature.
func applyBehavior(behavior map[string]any, maxTokens int64, temperature float64) (int64, float64) {
	if v, ok := number(behavior["max_tokens"]); ok && v > 0 && int64(v) < maxTokens {
		maxTokens = int64(v)
	}
	if v, ok := number(behavior["temperature"]); ok && v >= 0 && v <= 2 {
		temperature = v
	}
	return maxTokens, temperature
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
