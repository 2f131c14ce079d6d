package flow

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/textmatch"
)

// Evaluator decides condition nodes and connection guards. Compiled regular
// expressions and expr programs are cached by source text.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	patterns map[string]*regexp.Regexp
}

// NewEvaluator creates an Evaluator with empty caches.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		programs: make(map[string]*vm.Program),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// expressionEnv is the environment visible to expression conditions and guards.
func expressionEnv(message string, variables map[string]string) map[string]any {
	if variables == nil {
		variables = map[string]string{}
	}
	return map[string]any{
		"message":    message,
		"normalized": textmatch.Normalize(message),
		"words":      textmatch.Words(textmatch.Normalize(message)),
		"variables":  variables,
	}
}

// Condition evaluates a condition node config against the message.
// Malformed patterns and failing expressions are logged and evaluate to false.
func (e *Evaluator) Condition(cfg models.ConditionConfig, message string, variables map[string]string) bool {
	switch cfg.EffectiveOperator() {
	case models.OperatorEquals:
		return textmatch.Normalize(message) == textmatch.Normalize(cfg.Value)
	case models.OperatorContains:
		return strings.Contains(textmatch.Normalize(message), textmatch.Normalize(cfg.Value))
	case models.OperatorRegex:
		re, err := e.pattern(cfg.Value)
		if err != nil {
			slog.Error("Evaluator.Condition: invalid regex", "pattern", cfg.Value, "error", err)
			return false
		}
		return re.MatchString(message)
	case models.OperatorExpression:
		ok, err := e.Expression(cfg.Value, message, variables)
		if err != nil {
			slog.Error("Evaluator.Condition: expression failed", "expression", cfg.Value, "error", err)
			return false
		}
		return ok
	default:
		slog.Warn("Evaluator.Condition: unknown operator", "operator", cfg.Operator)
		return false
	}
}

// Expression runs a boolean expr-lang expression over
// {message, normalized, words, variables}.
func (e *Evaluator) Expression(source, message string, variables map[string]string) (bool, error) {
	env := expressionEnv(message, variables)
	program, err := e.program(source, env)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run expression: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return b, nil
}

// Compile checks that an expression is valid without running it.
func (e *Evaluator) Compile(source string) error {
	_, err := e.program(source, expressionEnv("", nil))
	return err
}

func (e *Evaluator) program(source string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.programs[source]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.programs[source]; ok {
		return p, nil
	}
	p, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	e.programs[source] = p
	return p, nil
}

func (e *Evaluator) pattern(source string) (*regexp.Regexp, error) {
	e.mu.RLock()
	if re, ok := e.patterns[source]; ok {
		e.mu.RUnlock()
		return re, nil
	}
	e.mu.RUnlock()

	re, err := regexp.Compile("(?i)" + source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.patterns[source] = re
	e.mu.Unlock()
	return re, nil
}
