package prompt

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/knowledge"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
)

const (
	promptVocabularyTerms = 3
	knowledgeAnswerLength = 100
	exampleResponseLength = 80
)

// sections holds everything the enriched system prompt may draw on.
type sections struct {
	bot        models.BotInfo
	config     *models.BotResponses
	personal   *persona.PersonalQuestion
	examples   []Example
	faqs       []knowledge.FAQResult
	knowledge  knowledge.Results
	vocabulary []models.VocabularyTerm
	history    []models.Exchange
	complexity int
}

// assemble joins the prompt sections. The identity block opens the prompt and
// is repeated by the closing reminders; a high confidence personal question
// reduces the prompt to the identity block and the exact answer.
func (s *sections) assemble() string {
	name := s.bot.Name
	parts := []string{s.identity()}

	if s.personal.UseDirectResponse() && s.personal.DirectResponse != "" {
		parts = append(parts, fmt.Sprintf(`RÉPONSE OBLIGATOIRE EXACTE:
"%s"

INSTRUCTIONS:
- Donne EXACTEMENT cette réponse
- N'ajoute RIEN d'autre
- Pas d'explication supplémentaire
- Pas de phrase générique d'IA`, s.personal.DirectResponse))
		return strings.Join(parts, "\n\n")
	}

	if s.complexity >= 1 {
		parts = append(parts, fmt.Sprintf(`STYLE DE COMMUNICATION:
- Style: %s
- Niveau: %s
- Toujours en tant que %s
- Jamais en tant qu'IA générique`, s.config.Style(), s.config.Level(), name))
	}

	if len(s.vocabulary) > 0 && s.complexity >= 1 {
		terms := s.vocabulary
		if len(terms) > promptVocabularyTerms {
			terms = terms[:promptVocabularyTerms]
		}
		pairs := make([]string, len(terms))
		for i, t := range terms {
			pairs[i] = fmt.Sprintf("'%s' signifie '%s'", t.Term, t.Definition)
		}
		parts = append(parts, "VOCABULAIRE SPÉCIALISÉ:\n"+strings.Join(pairs, "; ")+
			"\nUtilise ce vocabulaire en tant que "+name+".")
	}

	if s.knowledge.HasKnowledge && s.complexity >= 2 {
		section := "INFORMATIONS PERTINENTES:"
		if len(s.knowledge.FAQs) > 0 {
			faq := s.knowledge.FAQs[0]
			section += "\nQ: " + faq.Question + "\nR: " + knowledge.Truncate(faq.Answer, knowledgeAnswerLength)
		} else if len(s.faqs) > 0 {
			section += "\nQ: " + s.faqs[0].Question + "\nR: " + knowledge.Truncate(s.faqs[0].Answer, knowledgeAnswerLength)
		}
		if len(s.knowledge.Documents) > 0 {
			d := s.knowledge.Documents[0]
			section += "\n" + d.Title + ": " + d.Excerpt
		}
		parts = append(parts, section)
	}

	if len(s.examples) > 0 && s.complexity >= 2 {
		ex := s.examples[0]
		parts = append(parts, fmt.Sprintf("EXEMPLE DE TON STYLE:\nTrigger: \"%s\"\nTa réponse en tant que %s: \"%s\"",
			ex.Trigger, name, knowledge.Truncate(ex.Response, exampleResponseLength)))
	}

	if len(s.history) > 0 {
		var b strings.Builder
		b.WriteString("CONVERSATION RÉCENTE:")
		for _, e := range s.history {
			if e.User != "" {
				b.WriteString("\nUtilisateur: " + e.User)
			}
			if e.Bot != "" {
				b.WriteString("\n" + name + ": " + e.Bot)
			}
		}
		parts = append(parts, b.String())
	}

	reminders := fmt.Sprintf(`RAPPELS CRITIQUES:
1. Tu es %s - PAS une IA générique
2. Utilise ton identité configurée ci-dessus
3. INTERDICTION de dire "assistante virtuelle"
4. Réponds directement en tant que %s`, name, name)
	if s.complexity <= 1 {
		reminders += "\n5. Sois concis"
	}
	parts = append(parts, reminders)

	parts = append(parts, fmt.Sprintf(`EXEMPLE D'APPLICATION:
Si l'utilisateur demande qui tu es, réponds:
"%s"

Maintenant, réponds à l'utilisateur en respectant ton identité.`, s.bot.IdentitySentence()))

	return strings.Join(parts, "\n\n")
}

func (s *sections) identity() string {
	name := s.bot.Name
	return fmt.Sprintf(`IDENTITÉ ABSOLUE - RESPECTER OBLIGATOIREMENT:
- Nom: %s
- Rôle: %s

INTERDICTIONS STRICTES:
- JAMAIS dire "Je suis une assistante virtuelle"
- JAMAIS dire "Je suis un assistant virtuel"
- JAMAIS dire "Je suis Claude" ou "Je suis ChatGPT"
- JAMAIS utiliser des phrases génériques d'IA

EXEMPLE DE BONNE RÉPONSE:
Utilisateur: "Qui es-tu ?"
Réponse correcte: "%s"

EXEMPLE DE MAUVAISE RÉPONSE (À ÉVITER):
"Je suis une assistante virtuelle conçue pour..."

TON IDENTITÉ EST %s - PAS UNE "ASSISTANTE VIRTUELLE" !`, name, s.bot.Description, s.bot.IdentitySentence(), name)
}
