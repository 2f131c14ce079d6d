// Package prompt builds the system and user prompts sent to a provider when
// no flow or configured response answered a message.
//
// Short social messages get a minimal identity prompt. Everything else is
// enriched with examples, knowledge, FAQs and vocabulary according to its
// estimated complexity, and always carries a repeated identity constraint so
// the model answers as the configured bot.
package prompt

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/knowledge"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
	"github.com/BTreeMap/BotRouter/internal/responses"
)

// Lookup limits for the enriched prompt.
const (
	MaxExamples         = 2
	MaxKnowledgeResults = 3
	MaxFAQs             = 2
	MaxVocabularyTerms  = 5
	exampleLength       = 100
)

// tokensPerWord approximates provider tokens from whitespace words.
const tokensPerWord = 1.3

// Prompts is the system/user pair handed to a provider.
type Prompts struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Session carries per-request context. Knowledge, when set, is used instead
// of searching the knowledge base again.
type Session struct {
	UserID    int64
	History   []models.Exchange
	Knowledge *knowledge.Results
}

// Example is a quick response reused as a style sample.
type Example struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
	Score    int    `json:"score"`
}

// Metadata describes how a prompt was built.
type Metadata struct {
	Category        Category                  `json:"category"`
	Complexity      int                       `json:"complexity"`
	HasExamples     bool                      `json:"has_examples"`
	HasFAQs         bool                      `json:"has_faqs"`
	HasKnowledge    bool                      `json:"has_knowledge"`
	IsPersonal      bool                      `json:"is_personal"`
	KnowledgeScore  float64                   `json:"knowledge_score"`
	EstimatedTokens float64                   `json:"estimated_tokens"`
	Personal        *persona.PersonalQuestion `json:"personal,omitempty"`
	Bot             models.BotInfo            `json:"-"`
}

// Builder assembles prompts from the bot configuration.
type Builder struct {
	persona    *persona.Resolver
	responses  *responses.Manager
	knowledge  *knowledge.Integrator
	classifier persona.Classifier
}

// NewBuilder creates a Builder. A nil classifier selects the French keyword
// classifier.
func NewBuilder(resolver *persona.Resolver, rm *responses.Manager, ki *knowledge.Integrator, classifier persona.Classifier) *Builder {
	if classifier == nil {
		classifier = persona.NewKeywordClassifier()
	}
	return &Builder{persona: resolver, responses: rm, knowledge: ki, classifier: classifier}
}

// Build returns the prompts for message.
func (b *Builder) Build(ctx context.Context, message string, session Session) (Prompts, Metadata) {
	analysis := Analyze(message)
	if analysis.Simple {
		return b.buildSimple(ctx, message, session, analysis)
	}
	return b.buildEnriched(ctx, message, session, analysis)
}

func (b *Builder) buildSimple(ctx context.Context, message string, session Session, analysis Analysis) (Prompts, Metadata) {
	bot := b.persona.BotInfo(ctx, session.UserID)
	identity := "Tu es " + bot.Name + ". " + bot.Description + " Tu n'es PAS une assistante virtuelle générique."

	system := identity
	switch analysis.Category {
	case CategoryGreetings:
		system += " Réponds amicalement à cette salutation en restant dans ton rôle."
	case CategoryThanks:
		system += " L'utilisateur te remercie, réponds poliment."
	case CategoryGoodbye:
		system += " L'utilisateur dit au revoir, réponds courtoisement."
	}

	meta := Metadata{
		Category:        analysis.Category,
		EstimatedTokens: estimateTokens(system, message),
		Bot:             bot,
	}
	slog.Debug("Builder.buildSimple: prompt built", "category", analysis.Category, "estimated_tokens", meta.EstimatedTokens)
	return Prompts{System: system, User: message}, meta
}

func (b *Builder) buildEnriched(ctx context.Context, message string, session Session, analysis Analysis) (Prompts, Metadata) {
	bot := b.persona.BotInfo(ctx, session.UserID)
	cfg := b.responses.Config(ctx)
	if cfg == nil {
		cfg = &models.BotResponses{}
	}

	personal := b.classifier.Classify(message, bot)
	if personal == nil {
		persona.LogMissedQuestion(message, session.UserID)
	}

	in := sections{bot: bot, config: cfg, personal: personal, history: session.History}
	if analysis.NeedsExamples {
		in.examples = FindExamples(b.responses.QuickResponses(ctx), message, MaxExamples)
	}
	if analysis.NeedsKnowledge {
		if session.Knowledge != nil {
			in.knowledge = *session.Knowledge
		} else {
			in.knowledge = b.knowledge.Search(ctx, message, MaxKnowledgeResults)
		}
		in.faqs = b.knowledge.SimilarFAQs(message, MaxFAQs)
	}
	if analysis.NeedsVocabulary {
		in.vocabulary = vocabulary(cfg.Vocabulary, MaxVocabularyTerms)
	}
	in.complexity = EstimateComplexity(message, in.knowledge.HasKnowledge, personal != nil)

	system := in.assemble()
	meta := Metadata{
		Category:        analysis.Category,
		Complexity:      in.complexity,
		HasExamples:     len(in.examples) > 0,
		HasFAQs:         len(in.faqs) > 0,
		HasKnowledge:    in.knowledge.HasKnowledge,
		IsPersonal:      personal != nil,
		KnowledgeScore:  in.knowledge.RelevanceScore,
		EstimatedTokens: estimateTokens(system, message),
		Personal:        personal,
		Bot:             bot,
	}
	slog.Debug("Builder.buildEnriched: prompt built", "complexity", meta.Complexity,
		"has_knowledge", meta.HasKnowledge, "is_personal", meta.IsPersonal, "estimated_tokens", meta.EstimatedTokens)
	return Prompts{System: system, User: message}, meta
}

// FindExamples scores quick responses as style samples: 2 per trigger found
// in the message, otherwise 1 when any trigger word is found.
func FindExamples(msgs []models.DefaultMessage, message string, limit int) []Example {
	lower := strings.ToLower(strings.TrimSpace(message))
	var out []Example
	for _, m := range msgs {
		triggers := m.TriggerList()
		if len(triggers) == 0 {
			continue
		}
		score := 0
		for _, trigger := range triggers {
			trigger = strings.ToLower(trigger)
			if strings.Contains(lower, trigger) {
				score += 2
				continue
			}
			for _, w := range strings.Fields(trigger) {
				if strings.Contains(lower, w) {
					score++
					break
				}
			}
		}
		if score == 0 {
			continue
		}
		out = append(out, Example{
			Trigger:  strings.ToLower(triggers[0]),
			Response: knowledge.Truncate(m.Content, exampleLength),
			Score:    score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func vocabulary(v models.Vocabulary, limit int) []models.VocabularyTerm {
	terms := v.Terms()
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func estimateTokens(system, user string) float64 {
	return float64(len(strings.Fields(system)))*tokensPerWord + float64(len(strings.Fields(user)))*tokensPerWord
}
