package flow

import (
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// Step records one visited node.
type Step struct {
	NodeID   int64           `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
}

// ExecutionContext is the per-request state of one flow execution.
// It is never persisted.
type ExecutionContext struct {
	UserID      int64
	UserMessage string
	Variables   map[string]string
	Path        []Step

	parts []string
}

// NewExecutionContext creates an empty context for message.
func NewExecutionContext(userID int64, message string) *ExecutionContext {
	return &ExecutionContext{
		UserID:      userID,
		UserMessage: message,
		Variables:   make(map[string]string),
	}
}

// SetVariable stores a flow variable.
func (c *ExecutionContext) SetVariable(name, value string) {
	c.Variables[name] = value
}

// Variable returns a flow variable.
func (c *ExecutionContext) Variable(name string) (string, bool) {
	v, ok := c.Variables[name]
	return v, ok
}

// AddResponse appends a response fragment.
func (c *ExecutionContext) AddResponse(text string) {
	c.parts = append(c.parts, text)
}

// Response joins the fragments with newlines.
func (c *ExecutionContext) Response() string {
	return strings.Join(c.parts, "\n")
}

// Substitute replaces {name} with the matching variable. Unknown names are kept.
func (c *ExecutionContext) Substitute(text string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := c.Variables[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

func (c *ExecutionContext) visit(n models.FlowNode) {
	c.Path = append(c.Path, Step{NodeID: n.ID, NodeType: n.Type})
}
