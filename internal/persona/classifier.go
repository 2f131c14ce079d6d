package persona

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/textmatch"
)

// QuestionType names a kind of question about the bot itself.
type QuestionType string

// Personal question types.
const (
	QuestionIdentity     QuestionType = "identity"
	QuestionProfession   QuestionType = "profession"
	QuestionCapabilities QuestionType = "capabilities"
	QuestionPresentation QuestionType = "presentation"
)

// DirectResponseConfidence is the confidence at which the prompt is reduced
// to an exact-response instruction.
const DirectResponseConfidence = 0.8

// PersonalQuestion is a detected question about the bot.
type PersonalQuestion struct {
	Type           QuestionType `json:"type"`
	Confidence     float64      `json:"confidence"`
	DirectResponse string       `json:"direct_response"`
	MaxTokens      int          `json:"max_tokens"`
	Temperature    float64      `json:"temperature"`
}

// UseDirectResponse reports whether the canned answer should be forced.
func (q *PersonalQuestion) UseDirectResponse() bool {
	if q == nil {
		return false
	}
	return q.Confidence >= DirectResponseConfidence ||
		q.Type == QuestionIdentity || q.Type == QuestionPresentation
}

// Classifier detects personal questions. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(message string, bot models.BotInfo) *PersonalQuestion
}

// KeywordSet maps a list of phrases to one question type.
type KeywordSet struct {
	Type       QuestionType
	Confidence float64
	Keywords   []string
	Respond    func(bot models.BotInfo) string
}

// KeywordClassifier matches normalized keyword phrases on word boundaries.
// When several sets match, the last one wins.
type KeywordClassifier struct {
	sets []KeywordSet
}

// NewKeywordClassifier builds a classifier from sets, defaulting to the
// French keyword tables when none are given.
func NewKeywordClassifier(sets ...KeywordSet) *KeywordClassifier {
	if len(sets) == 0 {
		sets = FrenchKeywordSets()
	}
	normalized := make([]KeywordSet, len(sets))
	for i, set := range sets {
		normalized[i] = set
		normalized[i].Keywords = normalizeKeywords(set.Keywords)
	}
	return &KeywordClassifier{sets: normalized}
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		n := textmatch.Normalize(k)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Classify returns the detected question or nil.
func (c *KeywordClassifier) Classify(message string, bot models.BotInfo) *PersonalQuestion {
	normalized := textmatch.Normalize(message)
	if normalized == "" {
		return nil
	}
	var found *PersonalQuestion
	for _, set := range c.sets {
		for _, kw := range set.Keywords {
			if !textmatch.ContainsPhrase(normalized, kw) {
				continue
			}
			found = &PersonalQuestion{
				Type:           set.Type,
				Confidence:     set.Confidence,
				DirectResponse: set.Respond(bot),
				MaxTokens:      50,
				Temperature:    0.2,
			}
			if set.Type == QuestionPresentation {
				found.MaxTokens = 80
			}
			break
		}
	}
	if found != nil {
		slog.Debug("KeywordClassifier.Classify: personal question detected", "type", found.Type, "confidence", found.Confidence)
	}
	return found
}

// FrenchKeywordSets returns the default French keyword tables.
func FrenchKeywordSets() []KeywordSet {
	return []KeywordSet{
		{
			Type:       QuestionIdentity,
			Confidence: 0.9,
			Keywords: []string{
				"nom", "prénom", "appelle", "appelles", "t'appelles",
				"qui es tu", "qui êtes vous", "te nommer", "ton nom", "votre nom",
				"comment vous appelez vous", "comment vous vous appelez",
				"quel est ton nom", "quel est votre nom", "peux tu te présenter",
				"pouvez vous vous présenter", "présente toi", "présentez vous",
				"identité", "qui vous êtes",
			},
			Respond: func(b models.BotInfo) string { return "Je m'appelle " + b.Name + "." },
		},
		{
			Type:       QuestionProfession,
			Confidence: 0.9,
			Keywords: []string{
				"métier", "profession", "travail", "boulot", "job",
				"tu fais quoi", "que fais tu", "fais tu dans la vie", "faites vous dans la vie",
				"que faites vous", "occupation", "fonction", "rôle", "activité",
				"domaine", "spécialité", "compétence", "en quoi tu peux aider",
				"en quoi vous pouvez aider", "comment tu peux m'aider", "comment vous pouvez m'aider",
			},
			Respond: func(b models.BotInfo) string { return b.Description },
		},
		{
			Type:       QuestionCapabilities,
			Confidence: 0.8,
			Keywords: []string{
				"que sais tu faire", "que savez vous faire", "tes capacités", "vos capacités",
				"tes compétences", "vos compétences", "tu peux faire quoi", "vous pouvez faire quoi",
				"comment tu m'aides", "comment vous m'aidez", "à quoi tu sers", "à quoi vous servez",
				"pourquoi tu es là", "pourquoi vous êtes là",
			},
			Respond: func(b models.BotInfo) string { return b.IdentitySentence() },
		},
		{
			Type:       QuestionPresentation,
			Confidence: 0.9,
			Keywords: []string{
				"présente toi", "présentez vous", "raconte moi qui tu es", "racontez moi qui vous êtes",
				"dis moi qui tu es", "dites moi qui vous êtes", "parle de toi", "parlez de vous",
			},
			Respond: func(b models.BotInfo) string { return "Je m'appelle " + b.Name + ". " + b.Description },
		},
	}
}

// Suggestions returns alternative phrasings for a question type.
func Suggestions(t QuestionType, bot models.BotInfo) []string {
	lowerDesc := strings.ToLower(bot.Description)
	switch t {
	case QuestionIdentity:
		return []string{
			"Je m'appelle " + bot.Name + ".",
			"Mon nom est " + bot.Name + ".",
			"Je suis " + bot.Name + ", votre assistant.",
		}
	case QuestionProfession:
		return []string{
			bot.Description,
			bot.IdentitySentence(),
			bot.Description + " N'hésitez pas à me poser vos questions !",
		}
	case QuestionCapabilities:
		return []string{
			bot.IdentitySentence(),
			bot.Description + " Comment puis-je vous aider ?",
			"En tant que " + bot.Name + ", " + lowerDesc,
		}
	case QuestionPresentation:
		return []string{
			"Je m'appelle " + bot.Name + ". " + bot.Description,
			"Bonjour ! Je suis " + bot.Name + ", " + lowerDesc,
			"Je me présente : " + bot.Name + ", " + lowerDesc + " Comment puis-je vous aider ?",
		}
	default:
		return nil
	}
}

// nearMiss lists stems hinting at a personal question the tables did not catch.
var nearMiss = []struct {
	topic string
	stems []string
}{
	{"name", []string{"nom", "appell", "prenom", "qui es", "identite", "present", "blaz"}},
	{"profession", []string{"metier", "travail", "profession", "fais quoi", "role", "boulot", "job"}},
	{"capabilities", []string{"capacite", "competence", "sais faire", "peux faire", "aider"}},
}

// LogMissedQuestion logs a warning when message looks personal but was not
// classified. It returns the suspected topic, or "" when nothing matched.
func LogMissedQuestion(message string, userID int64) string {
	normalized := textmatch.Normalize(message)
	for _, group := range nearMiss {
		for _, stem := range group.stems {
			if strings.Contains(normalized, stem) {
				slog.Warn("persona.LogMissedQuestion: possible personal question not classified",
					"topic", group.topic, "user_id", userID, "message", message)
				return group.topic
			}
		}
	}
	return ""
}
