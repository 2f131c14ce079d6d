package persona

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// identityRule rewrites one generic self-description.
// Patterns must not contain capturing groups.
type identityRule struct {
	pattern string
	replace func(bot models.BotInfo) string
}

func fullIdentity(b models.BotInfo) string { return b.IdentitySentence() }
func nameSentence(b models.BotInfo) string { return "Je suis " + b.Name + "." }
func nameOnly(b models.BotInfo) string     { return b.Name }

var identityRules = []identityRule{
	{`je suis une assistante virtuelle[^.!?]*[.!?]?`, fullIdentity},
	{`je suis un assistant virtuel[^.!?]*[.!?]?`, fullIdentity},
	{`je suis une ia\b[^.!?]*[.!?]?`, nameSentence},
	{`je suis (?:claude|chatgpt)\b[^.!?]*[.!?]?`, nameSentence},
	{`je suis un mod[eè]le de langage[^.!?]*[.!?]?`, nameSentence},
	{`en tant qu['’]assistante? virtuelle?`, func(b models.BotInfo) string { return "en tant que " + b.Name }},
	{`assistante virtuelle (?:sp[ée]cialis[ée]e|con[çc]ue pour)`, nameOnly},
	{`assistant virtuel (?:sp[ée]cialis[ée]|con[çc]u pour)`, nameOnly},
	{`(?:i am|i'm) an? (?:virtual|ai|artificial intelligence) assistant[^.!?]*[.!?]?`, fullIdentity},
	{`(?:i am|i'm) (?:claude|chatgpt)\b[^.!?]*[.!?]?`, func(b models.BotInfo) string { return "I am " + b.Name + "." }},
	{`(?:i am|i'm) an? (?:ai )?language model[^.!?]*[.!?]?`, func(b models.BotInfo) string { return "I am " + b.Name + "." }},
	{`as an ai(?: assistant| language model)?\b`, func(b models.BotInfo) string { return "as " + b.Name }},
}

// identityPattern joins every rule into one alternation so corrections are
// applied in a single pass and inserted text is never rewritten again.
var identityPattern = func() *regexp.Regexp {
	parts := make([]string, len(identityRules))
	for i, r := range identityRules {
		parts[i] = "(" + r.pattern + ")"
	}
	return regexp.MustCompile(`(?i)` + strings.Join(parts, "|"))
}()

// CorrectIdentity replaces every generic AI self-description in text with the
// configured identity. The boolean reports whether anything was replaced.
func CorrectIdentity(text string, bot models.BotInfo) (string, bool) {
	matches := identityPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, false
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		for g := range identityRules {
			if m[2+2*g] >= 0 {
				b.WriteString(identityRules[g].replace(bot))
				break
			}
		}
		last = m[1]
	}
	b.WriteString(text[last:])
	slog.Warn("persona.CorrectIdentity: generic identity replaced", "bot", bot.Name, "replacements", len(matches))
	return b.String(), true
}
