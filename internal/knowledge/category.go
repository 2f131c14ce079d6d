package knowledge

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/BotRouter/internal/models"
)

const (
	sampleFAQCount     = 3
	sampleAnswerLength = 100
)

// SampleFAQ is a shortened FAQ shown in a category overview.
type SampleFAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CategoryContext summarizes one knowledge category.
type CategoryContext struct {
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	FAQCount      int         `json:"faq_count"`
	DocumentCount int         `json:"document_count"`
	RuleCount     int         `json:"rule_count"`
	SampleFAQs    []SampleFAQ `json:"sample_faqs"`
}

// CategoryContext returns the overview of the category called name, or nil
// when no such category exists.
func (k *Integrator) CategoryContext(ctx context.Context, name string) (*CategoryContext, error) {
	cats, err := k.repo.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var cat *models.KnowledgeCategory
	for i := range cats {
		if strings.EqualFold(cats[i].Name, name) {
			cat = &cats[i]
			break
		}
	}
	if cat == nil {
		return nil, nil
	}

	out := &CategoryContext{Name: cat.Name, Description: cat.Description, SampleFAQs: []SampleFAQ{}}
	faqs, err := k.repo.ListFAQs()
	if err != nil {
		return nil, fmt.Errorf("failed to list FAQs: %w", err)
	}
	for _, f := range faqs {
		if !inCategory(f.CategoryID, cat.ID) {
			continue
		}
		out.FAQCount++
		if len(out.SampleFAQs) < sampleFAQCount {
			out.SampleFAQs = append(out.SampleFAQs, SampleFAQ{
				Question: f.Question,
				Answer:   Truncate(f.Answer, sampleAnswerLength),
			})
		}
	}
	docs, err := k.repo.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		if inCategory(d.CategoryID, cat.ID) {
			out.DocumentCount++
		}
	}
	rules, err := k.repo.ListActiveRules()
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	for _, r := range rules {
		if inCategory(r.CategoryID, cat.ID) {
			out.RuleCount++
		}
	}
	return out, nil
}

func inCategory(id *int64, want int64) bool {
	return id != nil && *id == want
}

// Truncate cuts s to n characters and appends "..." when it was longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
