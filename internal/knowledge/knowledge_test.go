package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/store"
)

func seed(t *testing.T) (*store.InMemoryStore, int64) {
	t.Helper()
	s := store.NewInMemoryStore()
	cat := &models.KnowledgeCategory{Name: "Livraison", Description: "Expédition des commandes"}
	if err := s.SaveCategory(cat); err != nil {
		t.Fatalf("SaveCategory: %v", err)
	}
	faqs := []models.FAQ{
		{CategoryID: &cat.ID, Question: "Quels sont les délais de livraison ?", Answer: "La livraison prend 3 jours ouvrés.", Keywords: []string{"livraison", "délais"}, Priority: 1},
		{Question: "Comment payer ?", Answer: "Carte bancaire ou virement.", Keywords: []string{"paiement"}},
	}
	for i := range faqs {
		if err := s.SaveFAQ(&faqs[i]); err != nil {
			t.Fatalf("SaveFAQ: %v", err)
		}
	}
	docs := []models.Document{
		{CategoryID: &cat.ID, Title: "Conditions générales", Content: strings.Repeat("x", 80) + " La livraison est gratuite dès 50 euros."},
		{Title: "Vide"},
	}
	for i := range docs {
		if err := s.SaveDocument(&docs[i]); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
	}
	rules := []models.ResponseRule{
		{Name: "urgence", CategoryID: &cat.ID, Conditions: models.RuleConditions{Contains: []string{"urgent"}}, ResponseTemplate: "Appelez-nous.", Priority: 1, IsActive: true},
		{Name: "suivi", Conditions: models.RuleConditions{Regex: `suivi|colis`, MinLength: 10}, ResponseTemplate: "Voir votre espace.", Priority: 5, IsActive: true},
		{Name: "vide", Conditions: models.RuleConditions{}, Priority: 9, IsActive: true},
		{Name: "inactive", Conditions: models.RuleConditions{Contains: []string{"urgent"}}, Priority: 10},
	}
	for i := range rules {
		if err := s.SaveRule(&rules[i]); err != nil {
			t.Fatalf("SaveRule: %v", err)
		}
	}
	return s, cat.ID
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Quels sont les délais de livraison, SVP ?")
	want := []string{"quels", "sont", "délais", "livraison", "svp"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExtractKeywords() = %q, want %q", got, want)
	}
	if got := ExtractKeywords("le la à de"); len(got) != 0 {
		t.Errorf("expected only stop words to be dropped, got %q", got)
	}
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		name     string
		words    []string
		content  string
		keywords []string
		want     float64
	}{
		{"no hit", []string{"prix"}, "livraison rapide", nil, 0},
		{"single hit", []string{"livraison"}, "Livraison rapide", nil, 1},
		{"repeated", []string{"livraison"}, "livraison livraison livraison", nil, 1.3},
		{"repeat bonus capped", []string{"a"}, strings.Repeat("a ", 9), nil, 1.5},
		{"keyword bonus", []string{"livraison"}, "livraison", []string{"Livraison"}, 3},
		{"keyword without content hit", []string{"paiement"}, "carte", []string{"paiement"}, 2},
		{"long penalty", []string{"livraison"}, "livraison " + strings.Repeat("x", 1000), nil, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relevance(tt.words, tt.content, tt.keywords)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Relevance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name  string
		query string
		cond  models.RuleConditions
		want  bool
	}{
		{"empty never matches", "urgent", models.RuleConditions{}, false},
		{"contains any", "C'est URGENT", models.RuleConditions{Contains: []string{"grave", "urgent"}}, true},
		{"contains none", "bonjour", models.RuleConditions{Contains: []string{"urgent"}}, false},
		{"regex case insensitive", "Mon COLIS", models.RuleConditions{Regex: "colis"}, true},
		{"broken regex", "colis", models.RuleConditions{Regex: "("}, false},
		{"min length short", "colis", models.RuleConditions{Regex: "colis", MinLength: 10}, false},
		{"min length ok", "où est mon colis", models.RuleConditions{Regex: "colis", MinLength: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RuleMatches(tt.query, tt.cond); got != tt.want {
				t.Errorf("RuleMatches(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	content := strings.Repeat("a", 100) + "livraison" + strings.Repeat("b", 300)
	got := Excerpt(content, []string{"livraison"})
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipses on both sides, got %q", got)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(got, "..."), "...")
	if len(body) != 200 || !strings.HasPrefix(body, strings.Repeat("a", 50)+"livraison") {
		t.Errorf("unexpected excerpt body %q", body)
	}

	short := "Livraison offerte."
	if got := Excerpt(short, []string{"inconnu"}); got != short {
		t.Errorf("short content should be returned whole, got %q", got)
	}

	accents := strings.Repeat("é", 300)
	if got := Excerpt(accents, nil); got != strings.Repeat("é", 150)+"..." {
		t.Errorf("excerpt should count characters, got %d runes", len([]rune(got)))
	}
}

func TestSearch(t *testing.T) {
	s, _ := seed(t)
	k := NewIntegrator(s)

	res := k.Search(context.Background(), "Délais de livraison urgent pour mon colis", 3)
	if !res.HasKnowledge || res.RelevanceScore <= 0 {
		t.Fatalf("expected knowledge, got %+v", res)
	}
	if len(res.FAQs) != 1 || res.FAQs[0].Category != "Livraison" {
		t.Errorf("unexpected FAQs: %+v", res.FAQs)
	}
	if len(res.Documents) != 1 || !strings.Contains(res.Documents[0].Excerpt, "livraison") {
		t.Errorf("unexpected documents: %+v", res.Documents)
	}
	if len(res.Rules) != 2 || res.Rules[0].Name != "suivi" || res.Rules[1].Name != "urgence" {
		t.Errorf("expected rules ordered by priority, got %+v", res.Rules)
	}
	sum := res.FAQs[0].Score + res.Documents[0].Score
	if diff := res.RelevanceScore - sum; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RelevanceScore = %v, want %v", res.RelevanceScore, sum)
	}
}

func TestSearchRulesOnlyHasNoKnowledge(t *testing.T) {
	s, _ := seed(t)
	res := NewIntegrator(s).Search(context.Background(), "urgent", 3)
	if len(res.Rules) != 1 {
		t.Fatalf("expected the urgent rule, got %+v", res.Rules)
	}
	if res.HasKnowledge {
		t.Error("rules carry no score and should not count as knowledge")
	}
}

func TestSearchLimit(t *testing.T) {
	s := store.NewInMemoryStore()
	for i := 0; i < 4; i++ {
		f := models.FAQ{Question: "livraison", Answer: "oui"}
		if err := s.SaveFAQ(&f); err != nil {
			t.Fatalf("SaveFAQ: %v", err)
		}
	}
	res := NewIntegrator(s).Search(context.Background(), "livraison", 2)
	if len(res.FAQs) != 2 {
		t.Errorf("expected 2 FAQs, got %d", len(res.FAQs))
	}
}

type failingRepo struct{ store.KnowledgeRepo }

func (failingRepo) ListCategories() ([]models.KnowledgeCategory, error) {
	return nil, errors.New("boom")
}
func (failingRepo) ListFAQs() ([]models.FAQ, error) { return nil, errors.New("boom") }
func (failingRepo) ListDocuments() ([]models.Document, error) { return nil, errors.New("boom") }
func (failingRepo) ListActiveRules() ([]models.ResponseRule, error) {
	return nil, errors.New("boom")
}

func TestSearchSwallowsRepositoryErrors(t *testing.T) {
	res := NewIntegrator(failingRepo{}).Search(context.Background(), "livraison", 3)
	if res.HasKnowledge || len(res.FAQs)+len(res.Rules)+len(res.Documents) != 0 {
		t.Errorf("expected empty results, got %+v", res)
	}
}

func TestCategoryContext(t *testing.T) {
	s, _ := seed(t)
	k := NewIntegrator(s)

	cc, err := k.CategoryContext(context.Background(), "livraison")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc == nil || cc.Name != "Livraison" || cc.FAQCount != 1 || cc.DocumentCount != 1 || cc.RuleCount != 1 {
		t.Fatalf("unexpected context: %+v", cc)
	}
	if len(cc.SampleFAQs) != 1 || cc.SampleFAQs[0].Answer != "La livraison prend 3 jours ouvrés." {
		t.Errorf("unexpected samples: %+v", cc.SampleFAQs)
	}

	missing, err := k.CategoryContext(context.Background(), "inconnue")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown category, got %+v, %v", missing, err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abc", 5); got != "abc" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("éééééé", 3); got != "ééé..." {
		t.Errorf("Truncate long = %q", got)
	}
}

func TestSimilarFAQs(t *testing.T) {
	s := store.NewInMemoryStore()
	faqs := []models.FAQ{
		{Question: "Comment payer ?", Answer: strings.Repeat("a", 200)},
		{Question: "Comment suivre ma commande ?", Answer: "Via votre espace."},
		{Question: "Horaires", Answer: "9h-18h"},
	}
	for i := range faqs {
		if err := s.SaveFAQ(&faqs[i]); err != nil {
			t.Fatalf("SaveFAQ: %v", err)
		}
	}
	got := NewIntegrator(s).SimilarFAQs("comment payer ma commande ?", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %+v", got)
	}
	if got[0].Question != "Comment payer ?" || got[0].Score != 1 {
		t.Errorf("unexpected best match: %+v", got[0])
	}
	if len([]rune(got[0].Answer)) != 153 {
		t.Errorf("expected answer cut to 150 characters plus ellipsis, got %d", len([]rune(got[0].Answer)))
	}
	if diff := got[1].Score - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected four of five question words shared, got %v", got[1].Score)
	}
}
