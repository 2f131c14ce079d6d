// Package knowledge searches FAQs, documents and response rules for content
// relevant to a user message.
package knowledge

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// DefaultMaxResults bounds each result category when the caller passes 0.
const DefaultMaxResults = 5

const (
	longContentLength  = 1000
	longContentPenalty = 0.8
	excerptLength      = 200
	excerptLeadIn      = 50

	similarAnswerLength = 150
)

var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "de": {}, "du": {},
	"et": {}, "ou": {}, "mais": {}, "donc": {}, "or": {}, "ni": {}, "car": {},
	"à": {}, "dans": {}, "pour": {}, "sur": {}, "avec": {}, "sans": {},
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// FAQResult is a scored FAQ.
type FAQResult struct {
	ID       int64    `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category,omitempty"`
	Score    float64  `json:"score"`
	Keywords []string `json:"keywords,omitempty"`
}

// RuleResult is an applicable response rule. Rules carry no score.
type RuleResult struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template"`
	Priority int    `json:"priority"`
	Category string `json:"category,omitempty"`
}

// DocumentResult is a scored document with an excerpt around the first hit.
type DocumentResult struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Excerpt  string  `json:"excerpt"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
}

// Results is the outcome of a knowledge search. RelevanceScore is the sum of
// every item score and only signals whether anything relevant was found.
type Results struct {
	FAQs           []FAQResult      `json:"faqs"`
	Rules          []RuleResult     `json:"rules"`
	Documents      []DocumentResult `json:"documents"`
	RelevanceScore float64          `json:"relevance_score"`
	HasKnowledge   bool             `json:"has_knowledge"`
}

// Integrator searches the knowledge base.
type Integrator struct {
	repo store.KnowledgeRepo
}

// NewIntegrator creates an Integrator.
func NewIntegrator(repo store.KnowledgeRepo) *Integrator {
	return &Integrator{repo: repo}
}

// Search runs the FAQ, rule and document searches concurrently. Failures are
// logged and yield empty categories.
func (k *Integrator) Search(ctx context.Context, query string, maxResults int) Results {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	categories := k.categoryNames()
	keywords := ExtractKeywords(query)

	var res Results
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.FAQs = k.searchFAQs(keywords, categories, maxResults)
		return nil
	})
	g.Go(func() error {
		res.Rules = k.searchRules(query, categories, maxResults)
		return nil
	})
	g.Go(func() error {
		res.Documents = k.searchDocuments(keywords, categories, maxResults)
		return nil
	})
	_ = g.Wait()

	for _, f := range res.FAQs {
		res.RelevanceScore += f.Score
	}
	for _, d := range res.Documents {
		res.RelevanceScore += d.Score
	}
	res.HasKnowledge = res.RelevanceScore > 0
	slog.Debug("Integrator.Search: done", "faqs", len(res.FAQs), "rules", len(res.Rules),
		"documents", len(res.Documents), "relevance", res.RelevanceScore)
	return res
}

func (k *Integrator) categoryNames() map[int64]string {
	cats, err := k.repo.ListCategories()
	if err != nil {
		slog.Error("Integrator.categoryNames: failed to list categories", "error", err)
		return nil
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}

func categoryName(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

func (k *Integrator) searchFAQs(keywords []string, categories map[int64]string, limit int) []FAQResult {
	faqs, err := k.repo.ListFAQs()
	if err != nil {
		slog.Error("Integrator.searchFAQs: failed to list FAQs", "error", err)
		return nil
	}
	var out []FAQResult
	for _, f := range faqs {
		score := Relevance(keywords, f.Question+" "+f.Answer, f.Keywords)
		if score <= 0 {
			continue
		}
		out = append(out, FAQResult{
			ID: f.ID, Question: f.Question, Answer: f.Answer,
			Category: categoryName(categories, f.CategoryID),
			Score:    score, Keywords: f.Keywords,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (k *Integrator) searchRules(query string, categories map[int64]string, limit int) []RuleResult {
	rules, err := k.repo.ListActiveRules()
	if err != nil {
		slog.Error("Integrator.searchRules: failed to list rules", "error", err)
		return nil
	}
	var out []RuleResult
	for _, r := range rules {
		if !r.IsActive || !RuleMatches(query, r.Conditions) {
			continue
		}
		out = append(out, RuleResult{
			ID: r.ID, Name: r.Name, Template: r.ResponseTemplate, Priority: r.Priority,
			Category: categoryName(categories, r.CategoryID),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (k *Integrator) searchDocuments(keywords []string, categories map[int64]string, limit int) []DocumentResult {
	docs, err := k.repo.ListDocuments()
	if err != nil {
		slog.Error("Integrator.searchDocuments: failed to list documents", "error", err)
		return nil
	}
	var out []DocumentResult
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		score := Relevance(keywords, d.Title+" "+d.Content, nil)
		if score <= 0 {
			continue
		}
		out = append(out, DocumentResult{
			ID: d.ID, Title: d.Title, Excerpt: Excerpt(d.Content, keywords),
			Category: categoryName(categories, d.CategoryID), Score: score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ExtractKeywords lowercases text, strips punctuation and drops stop words and
// words of two characters or fewer.
func ExtractKeywords(text string) []string {
	text = punctuation.ReplaceAllString(strings.ToLower(text), " ")
	var out []string
	for _, w := range strings.Fields(text) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Relevance scores content against query keywords: 1 per keyword found, a
// repetition bonus of 0.1 per occurrence capped at 0.5, 2 per explicit
// keyword present in the query, and a 0.8 factor for content over 1000
// characters.
func Relevance(queryWords []string, content string, keywords []string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, w := range queryWords {
		if !strings.Contains(lower, w) {
			continue
		}
		score += 1.0
		if n := strings.Count(lower, w); n > 1 {
			score += min(float64(n)*0.1, 0.5)
		}
	}
	if len(keywords) > 0 {
		query := make(map[string]struct{}, len(queryWords))
		for _, w := range queryWords {
			query[strings.ToLower(w)] = struct{}{}
		}
		for _, kw := range keywords {
			if _, ok := query[strings.ToLower(kw)]; ok {
				score += 2.0
			}
		}
	}
	if utf8.RuneCountInString(content) > longContentLength {
		score *= longContentPenalty
	}
	return score
}

// RuleMatches reports whether every set condition holds for query. Empty
// conditions never match.
func RuleMatches(query string, c models.RuleConditions) bool {
	if c.IsEmpty() {
		return false
	}
	lower := strings.ToLower(query)
	if len(c.Contains) > 0 {
		found := false
		for _, term := range c.Contains {
			if strings.Contains(lower, strings.ToLower(term)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Regex != "" {
		re, err := regexp.Compile("(?i)" + c.Regex)
		if err != nil {
			slog.Warn("knowledge.RuleMatches: invalid regex", "pattern", c.Regex, "error", err)
			return false
		}
		if !re.MatchString(query) {
			return false
		}
	}
	if c.MinLength > 0 && utf8.RuneCountInString(query) < c.MinLength {
		return false
	}
	return true
}

// Excerpt returns up to 200 characters of content starting 50 characters
// before the first keyword hit, with ellipses where text was cut.
func Excerpt(content string, keywords []string) string {
	if content == "" {
		return ""
	}
	runes := []rune(content)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	best := len(runes)
	for _, kw := range keywords {
		if pos := indexRunes(lower, []rune(strings.ToLower(kw))); pos != -1 && pos < best {
			best = pos
		}
	}
	if best == len(runes) {
		best = 0
	}

	start := max(0, best-excerptLeadIn)
	end := min(len(runes), best+excerptLength-excerptLeadIn)
	excerpt := string(runes[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(runes) {
		excerpt += "..."
	}
	return excerpt
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// SimilarFAQs ranks FAQs by the share of their question words that also
// appear in message. Answers are cut to 150 characters.
func (k *Integrator) SimilarFAQs(message string, limit int) []FAQResult {
	faqs, err := k.repo.ListFAQs()
	if err != nil {
		slog.Error("Integrator.SimilarFAQs: failed to list FAQs", "error", err)
		return nil
	}
	userWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(message)) {
		userWords[w] = struct{}{}
	}
	var out []FAQResult
	for _, f := range faqs {
		questionWords := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(f.Question)) {
			questionWords[w] = struct{}{}
		}
		common := 0
		for w := range questionWords {
			if _, ok := userWords[w]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}
		out = append(out, FAQResult{
			ID: f.ID, Question: f.Question, Answer: Truncate(f.Answer, similarAnswerLength),
			Score: float64(common) / float64(len(questionWords)), Keywords: f.Keywords,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
