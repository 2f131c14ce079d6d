// Package textmatch normalizes free text and scores it against trigger phrases.
//
// Every routing decision downstream of the decision engine relies on these
// functions, so they are deterministic and free of side effects.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// partialWeight scales the word-overlap contribution of a trigger that is not
// found verbatim in the message.
const partialWeight = 0.7

// Normalize lowercases text, strips diacritics, replaces anything that is not
// an ASCII letter, digit or whitespace with a space, and collapses whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	decomposed := norm.NFKD.String(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r > unicode.MaxASCII:
			// combining marks and non-latin runes are dropped
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Words returns the whitespace separated tokens of an already normalized text.
func Words(normalized string) []string {
	return strings.Fields(normalized)
}

// WordSet returns the distinct tokens of an already normalized text.
func WordSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments must already be normalized.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Score rates message against triggers in [0, 1].
//
// Each trigger contributes 1.0 when its normalized form is a substring of the
// normalized message, otherwise the share of its words present in the message
// times 0.7. The result is the mean contribution, capped at 1.0. A trigger
// that normalizes to nothing contributes 0.
func Score(message string, triggers []string) float64 {
	if len(triggers) == 0 {
		return 0
	}
	normalized := Normalize(message)
	messageWords := WordSet(normalized)

	total := 0.0
	for _, trigger := range triggers {
		total += triggerScore(normalized, messageWords, Normalize(trigger))
	}
	score := total / float64(len(triggers))
	if score > 1.0 {
		return 1.0
	}
	return score
}

func triggerScore(message string, messageWords map[string]struct{}, trigger string) float64 {
	if trigger == "" {
		return 0
	}
	if strings.Contains(message, trigger) {
		return 1.0
	}
	triggerWords := WordSet(trigger)
	matching := 0
	for w := range triggerWords {
		if _, ok := messageWords[w]; ok {
			matching++
		}
	}
	if matching == 0 {
		return 0
	}
	return float64(matching) / float64(len(triggerWords)) * partialWeight
}
