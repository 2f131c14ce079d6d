package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// KnowledgeCategory groups FAQs, documents and rules.
type KnowledgeCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FAQ is a question/answer pair with explicit keywords.
type FAQ struct {
	ID         int64    `json:"id"`
	CategoryID *int64   `json:"category_id,omitempty"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Keywords   []string `json:"keywords"`
	Priority   int      `json:"priority"`
}

// Validate checks an FAQ before it is stored.
func (f *FAQ) Validate() error {
	if strings.TrimSpace(f.Question) == "" {
		return ErrEmptyQuestion
	}
	if strings.TrimSpace(f.Answer) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Document status values.
const (
	DocumentStatusPending   = "pending"
	DocumentStatusProcessed = "processed"
	DocumentStatusError     = "error"
)

// Document is uploaded reference text whose extracted content is searchable.
type Document struct {
	ID         int64     `json:"id"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// RuleConditions are the AND-combined predicates of a response rule.
// Contains matches when any listed term is present.
type RuleConditions struct {
	Contains  []string `json:"contains,omitempty"`
	Regex     string   `json:"regex,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
}

// IsEmpty reports whether no predicate is set. Empty conditions never match.
func (c RuleConditions) IsEmpty() bool {
	return len(c.Contains) == 0 && c.Regex == "" && c.MinLength <= 0
}

// UnmarshalJSON accepts "contains" as either a string or a list of strings.
func (c *RuleConditions) UnmarshalJSON(data []byte) error {
	var aux struct {
		Contains  json.RawMessage `json:"contains"`
		Regex     string          `json:"regex"`
		MinLength int             `json:"min_length"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = RuleConditions{Regex: aux.Regex, MinLength: aux.MinLength}
	if len(aux.Contains) == 0 || string(aux.Contains) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(aux.Contains, &single); err == nil {
		if single != "" {
			c.Contains = []string{single}
		}
		return nil
	}
	if err := json.Unmarshal(aux.Contains, &c.Contains); err != nil {
		return fmt.Errorf("contains must be a string or list of strings: %w", err)
	}
	return nil
}

// ResponseRule is a conditional canned answer consulted as knowledge.
type ResponseRule struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	CategoryID       *int64         `json:"category_id,omitempty"`
	Conditions       RuleConditions `json:"conditions"`
	ResponseTemplate string         `json:"response_template"`
	Priority         int            `json:"priority"`
	IsActive         bool           `json:"is_active"`
}

// Validate checks a rule before it is stored.
func (r *ResponseRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyRuleName
	}
	if r.Conditions.Regex != "" {
		if _, err := regexp.Compile("(?i)" + r.Conditions.Regex); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	return nil
}

// UsageLog records one provider call.
type UsageLog struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	RequestID       string    `json:"request_id"`
	Provider        Provider  `json:"provider"`
	Model           string    `json:"model"`
	TokensUsed      int64     `json:"tokens_used"`
	RequestDuration float64   `json:"request_duration"` // seconds
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
