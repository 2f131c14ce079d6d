// Package genai dispatches assembled prompts to a remote LLM provider.
//
// OpenAI and Mistral are reached through the OpenAI SDK (Mistral exposes a
// compatible endpoint); Claude is called over plain HTTP. Every adapter sends
// the system prompt separately from the user message. Provider failures are
// reported in Result.Error instead of being returned as Go errors.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// Error variables for better error handling and testability
var (
	ErrNoChoicesReturned   = errors.New("no choices returned")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrEmptyAPIKey         = errors.New("api key is empty")
)

// Default endpoints.
const (
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1/"
	DefaultMistralBaseURL = "https://api.mistral.ai/v1/"
	DefaultClaudeBaseURL  = "https://api.anthropic.com/v1"
	DefaultTimeout        = 30 * time.Second
)

// Token and temperature budgets indexed by prompt complexity.
var (
	maxTokensByComplexity   = [...]int64{100, 150, 200, 300}
	temperatureByComplexity = [...]float64{0.3, 0.5, 0.7, 0.8}
)

// Budget returns max tokens and temperature for a complexity tier. Tiers
// outside 0..3 are clamped.
func Budget(complexity int) (int64, float64) {
	i := min(max(complexity, 0), len(maxTokensByComplexity)-1)
	return maxTokensByComplexity[i], temperatureByComplexity[i]
}

// SupportedModels lists the models offered for each provider.
func SupportedModels(p models.Provider) []string {
	switch p {
	case models.ProviderOpenAI:
		return []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini"}
	case models.ProviderMistral:
		return []string{"mistral-small", "mistral-medium", "mistral-large", "open-mistral-7b", "open-mixtral-8x7b"}
	case models.ProviderClaude:
		return []string{"claude-sonnet-4-5", "claude-opus-4-1", "claude-sonnet-4", "claude-haiku-4-5", "claude-3-7-sonnet"}
	default:
		return nil
	}
}

// Request is one provider call.
type Request struct {
	Provider    models.Provider
	APIKey      string
	Model       string
	System      string
	User        string
	MaxTokens   int64
	// Temperature is forwarded whenever set, including zero.
	Temperature *float64

	// UserID and RequestID are recorded in the usage log.
	UserID    int64
	RequestID string
}

// Result is the outcome of a provider call. Error is set instead of Message
// when the call failed.
type Result struct {
	Message  string          `json:"message,omitempty"`
	Usage    models.Usage    `json:"usage"`
	Error    string          `json:"error,omitempty"`
	Provider models.Provider `json:"provider"`
	Model    string          `json:"model"`
	Duration time.Duration   `json:"duration"`
}

// Failed reports whether the call produced no usable message.
func (r Result) Failed() bool {
	return r.Error != ""
}

// completer is implemented by each provider adapter.
type completer interface {
	complete(ctx context.Context, req Request) (string, models.Usage, error)
}

// Config holds endpoint overrides and the per-call timeout.
type Config struct {
	OpenAIBaseURL  string
	MistralBaseURL string
	ClaudeBaseURL  string
	Timeout        time.Duration
}

func (c *Config) applyDefaults() {
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if c.MistralBaseURL == "" {
		c.MistralBaseURL = DefaultMistralBaseURL
	}
	if c.ClaudeBaseURL == "" {
		c.ClaudeBaseURL = DefaultClaudeBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the HTTP client shared by all adapters.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithUsageLog records every call in repo.
func WithUsageLog(repo store.UsageRepo) Option {
	return func(d *Dispatcher) { d.usage = repo }
}

// Dispatcher routes requests to provider adapters.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	usage      store.UsageRepo
	adapters   map[models.Provider]completer
}

// NewDispatcher creates a Dispatcher for OpenAI, Mistral and Claude.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	cfg.applyDefaults()
	d := &Dispatcher{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(d)
	}
	d.adapters = map[models.Provider]completer{
		models.ProviderOpenAI:  newOpenAICompatible(cfg.OpenAIBaseURL, d.httpClient),
		models.ProviderMistral: newOpenAICompatible(cfg.MistralBaseURL, d.httpClient),
		models.ProviderClaude:  &claudeAdapter{baseURL: cfg.ClaudeBaseURL, httpClient: d.httpClient},
	}
	return d
}

// providerLabel is the vendor name used in user facing error messages.
func providerLabel(p models.Provider) string {
	switch p {
	case models.ProviderOpenAI:
		return "OpenAI"
	case models.ProviderMistral:
		return "Mistral"
	case models.ProviderClaude:
		return "Claude"
	default:
		return string(p)
	}
}

// Generate calls the requested provider. It never returns an error: failures
// are described in Result.Error.
func (d *Dispatcher) Generate(ctx context.Context, req Request) Result {
	res := Result{Provider: req.Provider, Model: req.Model}
	adapter, ok := d.adapters[req.Provider]
	if !ok {
		res.Error = fmt.Sprintf("Provider %s non supporté", req.Provider)
		slog.Warn("Dispatcher.Generate: unsupported provider", "provider", req.Provider)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, usage, err := adapter.complete(ctx, req)
	res.Duration = time.Since(start)
	res.Usage = usage
	if err != nil {
		res.Error = fmt.Sprintf("Erreur %s: %v", providerLabel(req.Provider), err)
		slog.Error("Dispatcher.Generate: provider call failed", "provider", req.Provider, "model", req.Model, "error", err)
	} else {
		res.Message = Sanitize(text)
		slog.Debug("Dispatcher.Generate: provider call succeeded", "provider", req.Provider, "model", req.Model,
			"total_tokens", usage.TotalTokens, "duration", res.Duration)
	}
	d.logUsage(req, res)
	return res
}

// TestConnection sends a minimal request to check a key and model.
func (d *Dispatcher) TestConnection(ctx context.Context, provider models.Provider, apiKey, model string) Result {
	return d.Generate(ctx, Request{
		Provider:  provider,
		APIKey:    apiKey,
		Model:     model,
		User:      "Test de connexion",
		MaxTokens: 5,
	})
}

func (d *Dispatcher) logUsage(req Request, res Result) {
	if d.usage == nil {
		return
	}
	entry := models.UsageLog{
		UserID:          req.UserID,
		RequestID:       req.RequestID,
		Provider:        req.Provider,
		Model:           req.Model,
		TokensUsed:      res.Usage.TotalTokens,
		RequestDuration: res.Duration.Seconds(),
		Success:         !res.Failed(),
		ErrorMessage:    res.Error,
	}
	if err := d.usage.AddUsageLog(entry); err != nil {
		slog.Error("Dispatcher.logUsage: failed to record usage", "error", err)
	}
}

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think\b[^>]*>.*?</think>`)
	thinkFencePattern = regexp.MustCompile("(?is)```think\\s*.*?```")
)

// Sanitize strips reasoning blocks some models emit and trims the reply.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = thinkBlockPattern.ReplaceAllString(text, "")
	text = thinkFencePattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "<think>", "")
	text = strings.ReplaceAll(text, "</think>", "")
	return strings.TrimSpace(text)
}
