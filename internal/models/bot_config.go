package models

import (
	"sort"
	"strings"
	"time"
)

// Provider names a remote LLM vendor.
type Provider string

// Provider constants.
const (
	ProviderOpenAI  Provider = "openai"
	ProviderMistral Provider = "mistral"
	ProviderClaude  Provider = "claude"
)

// Default models used when a user has not picked one.
const (
	DefaultOpenAIModel  = "gpt-3.5-turbo"
	DefaultMistralModel = "mistral-small"
	DefaultClaudeModel  = "claude-sonnet-4"
)

// IsValidProvider checks if the given provider is supported.
func IsValidProvider(p Provider) bool {
	switch p {
	case ProviderOpenAI, ProviderMistral, ProviderClaude:
		return true
	default:
		return false
	}
}

// Bot identity fallbacks used when no Settings row supplies a value.
const (
	DefaultBotName        = "Assistant"
	DefaultBotDescription = "Je suis là pour répondre à vos questions."
	DefaultBotWelcome     = "Bonjour ! Comment puis-je vous aider aujourd'hui ?"
)

// Settings holds bot identity and provider credentials.
// A nil UserID marks the global defaults row.
type Settings struct {
	ID                  int64     `json:"id"`
	UserID              *int64    `json:"user_id,omitempty"`
	BotName             string    `json:"bot_name"`
	BotDescription      string    `json:"bot_description"`
	BotWelcome          string    `json:"bot_welcome"`
	BotAvatar           string    `json:"bot_avatar"`
	EncryptedOpenAIKey  string    `json:"encrypted_openai_key,omitempty"`
	EncryptedMistralKey string    `json:"encrypted_mistral_key,omitempty"`
	EncryptedClaudeKey  string    `json:"encrypted_claude_key,omitempty"`
	CurrentProvider     Provider  `json:"current_provider,omitempty"`
	OpenAIModel         string    `json:"openai_model,omitempty"`
	MistralModel        string    `json:"mistral_model,omitempty"`
	ClaudeModel         string    `json:"claude_model,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks provider selection consistency.
func (s *Settings) Validate() error {
	if s.CurrentProvider != "" && !IsValidProvider(s.CurrentProvider) {
		return ErrInvalidProvider
	}
	return nil
}

// EncryptedKey returns the stored ciphertext for provider p.
func (s *Settings) EncryptedKey(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return s.EncryptedOpenAIKey
	case ProviderMistral:
		return s.EncryptedMistralKey
	case ProviderClaude:
		return s.EncryptedClaudeKey
	default:
		return ""
	}
}

// ModelFor returns the configured model for provider p or its default.
func (s *Settings) ModelFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return firstNonEmpty(s.OpenAIModel, DefaultOpenAIModel)
	case ProviderMistral:
		return firstNonEmpty(s.MistralModel, DefaultMistralModel)
	case ProviderClaude:
		return firstNonEmpty(s.ClaudeModel, DefaultClaudeModel)
	default:
		return ""
	}
}

// BotInfo is the resolved bot identity used in prompts and post-processing.
type BotInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Welcome     string `json:"welcome"`
	Avatar      string `json:"avatar"`
}

// DefaultBotInfo is returned when no Settings row exists.
func DefaultBotInfo() BotInfo {
	return BotInfo{
		Name:        DefaultBotName,
		Description: DefaultBotDescription,
		Welcome:     DefaultBotWelcome,
	}
}

// BotInfoFromSettings builds identity from a row, filling empty fields with defaults.
func BotInfoFromSettings(s *Settings) BotInfo {
	return BotInfo{
		Name:        firstNonEmpty(s.BotName, DefaultBotName),
		Description: firstNonEmpty(s.BotDescription, DefaultBotDescription),
		Welcome:     s.BotWelcome,
		Avatar:      s.BotAvatar,
	}
}

// IdentitySentence is the canonical self-introduction.
func (b BotInfo) IdentitySentence() string {
	return "Je suis " + b.Name + ". " + b.Description
}

// DefaultMessage is a quick response matched by comma separated triggers.
type DefaultMessage struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Triggers string `json:"triggers"`
}

// TriggerList splits Triggers on commas, dropping empty entries.
func (m *DefaultMessage) TriggerList() []string {
	var out []string
	for _, t := range strings.Split(m.Triggers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks a quick response before it is stored.
func (m *DefaultMessage) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len(m.TriggerList()) == 0 {
		return ErrEmptyTriggers
	}
	return nil
}

// Template families recognized by the response manager.
const (
	TemplateGreeting = "greeting"
	TemplateFarewell = "farewell"
	TemplateThanks   = "thanks"
	TemplateHelp     = "help"
)

// VocabularyTerm is one business term and its definition.
type VocabularyTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// Vocabulary maps business terms to definitions.
type Vocabulary map[string]string

// Terms returns the vocabulary sorted by term so prompt sections are stable.
func (v Vocabulary) Terms() []VocabularyTerm {
	out := make([]VocabularyTerm, 0, len(v))
	for k, d := range v {
		out = append(out, VocabularyTerm{Term: k, Definition: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// BotResponses is the deployment-wide response style and template configuration.
type BotResponses struct {
	ID                 int64             `json:"id"`
	CommunicationStyle string            `json:"communication_style"`
	LanguageLevel      string            `json:"language_level"`
	PersonalityTraits  []string          `json:"personality_traits"`
	WelcomeMessage     string            `json:"welcome_message"`
	GoodbyeMessage     string            `json:"goodbye_message"`
	FallbackMessage    string            `json:"fallback_message"`
	RedirectMessage    string            `json:"redirect_message"`
	GeneralError       string            `json:"general_error"`
	TechnicalError     string            `json:"technical_error"`
	InvalidData        string            `json:"invalid_data"`
	ServiceUnavailable string            `json:"service_unavailable"`
	Vocabulary         Vocabulary        `json:"vocabulary"`
	EssentialTemplates map[string]string `json:"essential_templates"`
	BehaviorConfig     map[string]any    `json:"behavior_config"`
}

// Style returns the communication style, defaulting to professional.
func (r *BotResponses) Style() string {
	return firstNonEmpty(r.CommunicationStyle, "professional")
}

// Level returns the language level, defaulting to standard.
func (r *BotResponses) Level() string {
	return firstNonEmpty(r.LanguageLevel, "standard")
}

// ErrorField returns the configured error text for a column name.
func (r *BotResponses) ErrorField(name string) string {
	switch name {
	case "general_error":
		return r.GeneralError
	case "technical_error":
		return r.TechnicalError
	case "invalid_data":
		return r.InvalidData
	case "service_unavailable":
		return r.ServiceUnavailable
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
