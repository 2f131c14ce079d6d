// Package responses matches user messages against configured canned answers:
// trigger based quick responses and pattern based essential templates. It also
// serves the welcome, error and behavior configuration.
package responses

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
	"github.com/BTreeMap/BotRouter/internal/store"
	"github.com/BTreeMap/BotRouter/internal/textmatch"
)

// QuickResponseThreshold is the score a quick response must exceed.
const QuickResponseThreshold = 0.5

// TemplateConfidence is the confidence reported for template matches.
const TemplateConfidence = 0.9

// Match types and sources.
const (
	TypeQuickResponse = "quick_response"
	TypeTemplate      = "template"
	SourceDefault     = "DefaultMessage"
	SourceTemplates   = "BotResponses"
)

// Fallback texts used when nothing is configured.
const (
	DefaultErrorMessage      = "Désolé, une erreur s'est produite."
	DefaultRetryErrorMessage = "Désolé, une erreur s'est produite. Veuillez réessayer."
)

// Match is a configured answer selected for a message.
type Match struct {
	Type         string  `json:"type"`
	Source       string  `json:"source"`
	ID           int64   `json:"id,omitempty"`
	Title        string  `json:"title,omitempty"`
	TemplateType string  `json:"template_type,omitempty"`
	Content      string  `json:"content"`
	Confidence   float64 `json:"confidence"`
}

// templateFamily is one group of patterns selecting an essential template.
type templateFamily struct {
	key      string
	patterns []*regexp.Regexp
}

// templateFamilies are tried in order against the normalized message; the
// first family with a configured template and a matching pattern wins.
var templateFamilies = []templateFamily{
	{models.TemplateGreeting, []*regexp.Regexp{
		regexp.MustCompile(`\b(bonjour|salut|hello|hi|hey|coucou)\b`),
		regexp.MustCompile(`\b(bonsoir|bonne\s+journee)\b`),
	}},
	{models.TemplateFarewell, []*regexp.Regexp{
		regexp.MustCompile(`\b(au\s+revoir|bye|ciao|a\s+bientot|adieu)\b`),
		regexp.MustCompile(`\b(bonne\s+soiree|bonne\s+nuit)\b`),
	}},
	{models.TemplateThanks, []*regexp.Regexp{
		regexp.MustCompile(`\b(merci|thank|remercie)\b`),
	}},
	{models.TemplateHelp, []*regexp.Regexp{
		regexp.MustCompile(`\b(aide|help|aider|assister)\b`),
		regexp.MustCompile(`\b(comment|que\s+faire)\b`),
	}},
}

// errorFields maps error kinds to BotResponses columns.
var errorFields = map[string]string{
	"general":     "general_error",
	"technical":   "technical_error",
	"timeout":     "technical_error",
	"rate_limit":  "invalid_data",
	"unavailable": "service_unavailable",
}

// Snapshot is the cached response configuration.
type Snapshot struct {
	Messages []models.DefaultMessage `json:"messages"`
	Config   *models.BotResponses    `json:"config"`
}

const snapshotKey = "responses"

// Manager serves configured responses. Configuration is cached and must be
// invalidated with ClearCache after writes.
type Manager struct {
	repo     store.ResponseRepo
	settings store.SettingsRepo
	persona  *persona.Resolver
	cache    cache.Cache[Snapshot]
	now      func() time.Time
}

// NewManager creates a Manager.
func NewManager(repo store.ResponseRepo, settings store.SettingsRepo, resolver *persona.Resolver, c cache.Cache[Snapshot]) *Manager {
	return &Manager{repo: repo, settings: settings, persona: resolver, cache: c, now: time.Now}
}

func (m *Manager) snapshot(ctx context.Context) Snapshot {
	if s, ok := m.cache.Get(ctx, snapshotKey); ok {
		return s
	}
	var s Snapshot
	msgs, err := m.repo.ListDefaultMessages()
	if err != nil {
		slog.Error("Manager.snapshot: failed to list quick responses", "error", err)
		return s
	}
	cfg, err := m.repo.GetBotResponses()
	if err != nil {
		slog.Error("Manager.snapshot: failed to load response config", "error", err)
		return s
	}
	s = Snapshot{Messages: msgs, Config: cfg}
	m.cache.Set(ctx, snapshotKey, s)
	return s
}

// ClearCache drops the cached configuration.
func (m *Manager) ClearCache(ctx context.Context) {
	m.cache.Invalidate(ctx, snapshotKey)
}

// HasConfiguredResponses reports whether any quick response or essential
// template exists.
func (m *Manager) HasConfiguredResponses(ctx context.Context) bool {
	s := m.snapshot(ctx)
	return len(s.Messages) > 0 || (s.Config != nil && len(s.Config.EssentialTemplates) > 0)
}

// FindMatchingResponse returns the best quick response scoring above the
// threshold, else the first matching essential template, else nil.
func (m *Manager) FindMatchingResponse(ctx context.Context, message string, userID int64) *Match {
	s := m.snapshot(ctx)
	normalized := textmatch.Normalize(message)

	if match := findQuickResponse(s.Messages, message); match != nil {
		match.Content = m.processVariables(ctx, match.Content, userID)
		slog.Debug("Manager.FindMatchingResponse: quick response matched", "id", match.ID, "confidence", match.Confidence)
		return match
	}
	if s.Config != nil {
		if match := findTemplate(s.Config.EssentialTemplates, normalized); match != nil {
			match.Content = m.processVariables(ctx, match.Content, userID)
			slog.Debug("Manager.FindMatchingResponse: template matched", "template", match.TemplateType)
			return match
		}
	}
	return nil
}

// findQuickResponse keeps the highest score, ties going to the earliest
// message (lowest id), and returns it when it exceeds the threshold.
func findQuickResponse(msgs []models.DefaultMessage, message string) *Match {
	var best *models.DefaultMessage
	bestScore := 0.0
	for i := range msgs {
		triggers := msgs[i].TriggerList()
		if len(triggers) == 0 {
			continue
		}
		if score := textmatch.Score(message, triggers); score > bestScore {
			best, bestScore = &msgs[i], score
		}
	}
	if best == nil || bestScore <= QuickResponseThreshold {
		return nil
	}
	return &Match{
		Type:       TypeQuickResponse,
		Source:     SourceDefault,
		ID:         best.ID,
		Title:      best.Title,
		Content:    best.Content,
		Confidence: bestScore,
	}
}

func findTemplate(templates map[string]string, normalized string) *Match {
	if len(templates) == 0 {
		return nil
	}
	for _, fam := range templateFamilies {
		content, ok := templates[fam.key]
		if !ok {
			continue
		}
		for _, re := range fam.patterns {
			if re.MatchString(normalized) {
				return &Match{
					Type:         TypeTemplate,
					Source:       SourceTemplates,
					TemplateType: fam.key,
					Content:      content,
					Confidence:   TemplateConfidence,
				}
			}
		}
	}
	return nil
}

// processVariables substitutes {bot_name}, {domain}, {current_date} and
// {current_time} in canned content.
func (m *Manager) processVariables(ctx context.Context, content string, userID int64) string {
	if !strings.Contains(content, "{") {
		return content
	}
	bot := models.DefaultBotInfo()
	if m.persona != nil {
		bot = m.persona.BotInfo(ctx, userID)
	}
	now := m.now()
	r := strings.NewReplacer(
		"{bot_name}", bot.Name,
		"{domain}", bot.Description,
		"{current_date}", now.Format("02/01/2006"),
		"{current_time}", now.Format("15:04"),
	)
	return r.Replace(content)
}

// WelcomeMessage returns the user welcome, then the global one, then the default.
func (m *Manager) WelcomeMessage(ctx context.Context, userID int64) string {
	if userID != 0 {
		s, err := m.settings.GetUserSettings(userID)
		if err != nil {
			slog.Error("Manager.WelcomeMessage: user settings lookup failed", "user_id", userID, "error", err)
		} else if s != nil && strings.TrimSpace(s.BotWelcome) != "" {
			return s.BotWelcome
		}
	}
	s, err := m.settings.GetGlobalSettings()
	if err != nil {
		slog.Error("Manager.WelcomeMessage: global settings lookup failed", "error", err)
	} else if s != nil && strings.TrimSpace(s.BotWelcome) != "" {
		return s.BotWelcome
	}
	return models.DefaultBotWelcome
}

// ConfiguredErrorMessage returns the configured text for an error kind, if any.
// Unknown kinds map to the general error.
func (m *Manager) ConfiguredErrorMessage(ctx context.Context, kind string) (string, bool) {
	cfg := m.snapshot(ctx).Config
	if cfg == nil {
		return "", false
	}
	field, ok := errorFields[kind]
	if !ok {
		field = errorFields["general"]
	}
	text := cfg.ErrorField(field)
	return text, strings.TrimSpace(text) != ""
}

// ErrorMessage returns the text shown for an error kind.
func (m *Manager) ErrorMessage(ctx context.Context, kind string, userID int64) string {
	if m.snapshot(ctx).Config == nil {
		return DefaultErrorMessage
	}
	if text, ok := m.ConfiguredErrorMessage(ctx, kind); ok {
		return text
	}
	return DefaultRetryErrorMessage
}

// BehaviorConfig returns the behavior configuration, never nil.
func (m *Manager) BehaviorConfig(ctx context.Context) map[string]any {
	cfg := m.snapshot(ctx).Config
	if cfg == nil || cfg.BehaviorConfig == nil {
		return map[string]any{}
	}
	return cfg.BehaviorConfig
}

// Config returns the response style configuration, or nil when none exists.
func (m *Manager) Config(ctx context.Context) *models.BotResponses {
	return m.snapshot(ctx).Config
}

// QuickResponses returns every configured quick response ordered by id.
func (m *Manager) QuickResponses(ctx context.Context) []models.DefaultMessage {
	return m.snapshot(ctx).Messages
}
