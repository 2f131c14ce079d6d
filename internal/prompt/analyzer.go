package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/BotRouter/internal/textmatch"
)

// Category is the coarse kind of a message.
type Category string

// Message categories. Everything that is not a short social message is complex.
const (
	CategoryGreetings Category = "greetings"
	CategoryThanks    Category = "thanks"
	CategoryGoodbye   Category = "goodbye"
	CategoryYesNo     Category = "yes_no"
	CategoryComplex   Category = "complex"
)

// simpleWordLimit is the longest message, in words, that can be simple.
const simpleWordLimit = 3

// simplePatterns are checked in order; the first category with a phrase
// present in a short message wins.
var simplePatterns = []struct {
	category Category
	phrases  []string
}{
	{CategoryGreetings, []string{"salut", "bonjour", "hello", "hi", "coucou", "bonsoir"}},
	{CategoryThanks, []string{"merci", "thanks", "thx"}},
	{CategoryGoodbye, []string{"au revoir", "bye", "à bientôt", "goodbye"}},
	{CategoryYesNo, []string{"oui", "non", "yes", "no", "ok", "d'accord"}},
}

// complexStems mark questions that call for explanation. Each counts once.
var complexStems = []string{"pourquoi", "comment", "expliqu", "analys", "compar", "evalu"}

// Analysis is the pre-classification of a message.
type Analysis struct {
	Simple          bool     `json:"is_simple"`
	Category        Category `json:"category"`
	Score           float64  `json:"score"`
	Tier            int      `json:"estimated_complexity"`
	NeedsKnowledge  bool     `json:"needs_knowledge"`
	NeedsVocabulary bool     `json:"needs_vocabulary"`
	NeedsExamples   bool     `json:"needs_examples"`
}

// Analyze classifies message. Short social messages are simple and need no
// enrichment. Other messages get a score from length, explanatory words and
// question marks, bucketed into tiers 0 to 3.
func Analyze(message string) Analysis {
	normalized := textmatch.Normalize(message)
	wordCount := len(strings.Fields(message))

	if wordCount <= simpleWordLimit {
		for _, p := range simplePatterns {
			for _, phrase := range p.phrases {
				if textmatch.ContainsPhrase(normalized, textmatch.Normalize(phrase)) {
					return Analysis{Simple: true, Category: p.category}
				}
			}
		}
	}

	score := min(float64(wordCount)/20, 1.0)
	score += 0.5 * float64(countComplexStems(normalized))
	score += 0.3 * float64(strings.Count(message, "?"))

	a := Analysis{
		Category:        CategoryComplex,
		Score:           score,
		Tier:            tier(score),
		NeedsKnowledge:  true,
		NeedsVocabulary: true,
		NeedsExamples:   true,
	}
	if a.Tier == 0 {
		a.NeedsExamples = false
		a.NeedsVocabulary = wordCount > 5
	}
	return a
}

// EstimateComplexity returns the tier that gates prompt sections. It weighs
// character length instead of word count and lowers the score when knowledge
// was found. Personal questions are always tier 0.
func EstimateComplexity(message string, hasKnowledge, isPersonal bool) int {
	if isPersonal {
		return 0
	}
	score := min(float64(utf8.RuneCountInString(message))/100, 1.0)
	score += 0.3 * float64(countComplexStems(textmatch.Normalize(message)))
	score += 0.3 * float64(strings.Count(message, "?"))
	if hasKnowledge {
		score -= 0.3
	}
	return tier(score)
}

func tier(score float64) int {
	switch {
	case score < 0.5:
		return 0
	case score < 1.0:
		return 1
	case score < 2.0:
		return 2
	default:
		return 3
	}
}

func countComplexStems(normalized string) int {
	words := textmatch.Words(normalized)
	n := 0
	for _, stem := range complexStems {
		for _, w := range words {
			if strings.HasPrefix(w, stem) {
				n++
				break
			}
		}
	}
	return n
}
