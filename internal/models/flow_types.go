// Package models defines conversation flow graph types.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NodeType identifies the behavior of a flow node.
type NodeType string

// Node type constants.
const (
	NodeTypeMessage   NodeType = "message"
	NodeTypeCondition NodeType = "condition"
	NodeTypeInput     NodeType = "input"
	NodeTypeAction    NodeType = "action"
	NodeTypeAPI       NodeType = "api"
)

// IsValidNodeType checks if the given node type is supported.
func IsValidNodeType(t NodeType) bool {
	switch t {
	case NodeTypeMessage, NodeTypeCondition, NodeTypeInput, NodeTypeAction, NodeTypeAPI:
		return true
	default:
		return false
	}
}

// ConditionOperator selects how a condition node compares the message.
type ConditionOperator string

// Condition operator constants.
const (
	OperatorEquals     ConditionOperator = "equals"
	OperatorContains   ConditionOperator = "contains"
	OperatorRegex      ConditionOperator = "regex"
	OperatorExpression ConditionOperator = "expression"
)

// DefaultInputVariable is used when an input node does not name its variable.
const DefaultInputVariable = "user_input"

// DefaultAPIMethod is used when an api node does not name its HTTP method.
const DefaultAPIMethod = "GET"

// NodeConfig is the typed configuration carried by a FlowNode.
// Exactly one concrete type exists per NodeType.
type NodeConfig interface {
	NodeType() NodeType
	Validate() error
}

// MessageConfig appends text to the flow response.
type MessageConfig struct {
	Message string `json:"message"`
}

func (MessageConfig) NodeType() NodeType { return NodeTypeMessage }

func (c MessageConfig) Validate() error {
	if strings.TrimSpace(c.Message) == "" {
		return ErrEmptyNodeMessage
	}
	return nil
}

// ConditionConfig gates the walk on a comparison against the user message.
type ConditionConfig struct {
	Operator ConditionOperator `json:"operator,omitempty"`
	Value    string            `json:"value"`
}

func (ConditionConfig) NodeType() NodeType { return NodeTypeCondition }

// EffectiveOperator returns the operator, defaulting to equals.
func (c ConditionConfig) EffectiveOperator() ConditionOperator {
	if c.Operator == "" {
		return OperatorEquals
	}
	return c.Operator
}

func (c ConditionConfig) Validate() error {
	switch c.EffectiveOperator() {
	case OperatorEquals, OperatorContains:
		return nil
	case OperatorRegex:
		if _, err := regexp.Compile("(?i)" + c.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return nil
	case OperatorExpression:
		if strings.TrimSpace(c.Value) == "" {
			return ErrInvalidPattern
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperator, c.Operator)
	}
}

// InputConfig captures the user message into a flow variable.
type InputConfig struct {
	Variable string `json:"variable,omitempty"`
}

func (InputConfig) NodeType() NodeType { return NodeTypeInput }

// EffectiveVariable returns the variable name, defaulting to user_input.
func (c InputConfig) EffectiveVariable() string {
	if c.Variable == "" {
		return DefaultInputVariable
	}
	return c.Variable
}

func (c InputConfig) Validate() error {
	if c.Variable != "" && strings.TrimSpace(c.Variable) == "" {
		return ErrEmptyVariableName
	}
	return nil
}

// ActionConfig is an extension point for side effects such as email or ticketing.
type ActionConfig struct {
	ActionType string `json:"action_type"`
}

func (ActionConfig) NodeType() NodeType { return NodeTypeAction }
func (ActionConfig) Validate() error    { return nil }

// APIConfig is an extension point for outbound HTTP calls.
type APIConfig struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method,omitempty"`
}

func (APIConfig) NodeType() NodeType { return NodeTypeAPI }
func (APIConfig) Validate() error    { return nil }

// EffectiveMethod returns the HTTP method, defaulting to GET.
func (c APIConfig) EffectiveMethod() string {
	if c.Method == "" {
		return DefaultAPIMethod
	}
	return strings.ToUpper(c.Method)
}

// DecodeNodeConfig decodes raw JSON into the config type matching t.
// Decoding does not validate; stored rows written before a rule tightened must still load.
func DecodeNodeConfig(t NodeType, raw []byte) (NodeConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	var (
		cfg NodeConfig
		err error
	)
	switch t {
	case NodeTypeMessage:
		var c MessageConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeTypeCondition:
		var c ConditionConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeTypeInput:
		var c InputConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeTypeAction:
		var c ActionConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case NodeTypeAPI:
		var c APIConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidNodeType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s node config: %w", t, err)
	}
	return cfg, nil
}

// ConversationFlow is a named, activatable conversation graph.
type ConversationFlow struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"is_active"`
	FlowData    json.RawMessage `json:"flow_data,omitempty"` // opaque editor layout
	CreatedAt   time.Time       `json:"created_at"`
}

// FlowNode is a typed vertex of a flow graph.
type FlowNode struct {
	ID        int64      `json:"id"`
	FlowID    int64      `json:"flow_id"`
	Type      NodeType   `json:"node_type"`
	PositionX float64    `json:"position_x"`
	PositionY float64    `json:"position_y"`
	Config    NodeConfig `json:"-"`
}

type flowNodeJSON struct {
	ID        int64           `json:"id"`
	FlowID    int64           `json:"flow_id"`
	Type      NodeType        `json:"node_type"`
	PositionX float64         `json:"position_x"`
	PositionY float64         `json:"position_y"`
	Config    json.RawMessage `json:"config"`
}

// MarshalJSON encodes the node with its config under "config".
func (n FlowNode) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("{}")
	if n.Config != nil {
		b, err := json.Marshal(n.Config)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(flowNodeJSON{
		ID: n.ID, FlowID: n.FlowID, Type: n.Type,
		PositionX: n.PositionX, PositionY: n.PositionY, Config: raw,
	})
}

// UnmarshalJSON decodes the node, selecting the config type from node_type.
func (n *FlowNode) UnmarshalJSON(data []byte) error {
	var aux flowNodeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	cfg, err := DecodeNodeConfig(aux.Type, aux.Config)
	if err != nil {
		return err
	}
	*n = FlowNode{
		ID: aux.ID, FlowID: aux.FlowID, Type: aux.Type,
		PositionX: aux.PositionX, PositionY: aux.PositionY, Config: cfg,
	}
	return nil
}

// Validate checks the node type and that its config matches it.
func (n *FlowNode) Validate() error {
	if !IsValidNodeType(n.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidNodeType, n.Type)
	}
	if n.Config == nil {
		return ErrMissingNodeConfig
	}
	if n.Config.NodeType() != n.Type {
		return ErrNodeConfigMismatch
	}
	return n.Config.Validate()
}

// NodeConnection is a directed edge between two nodes of the same flow.
// Lower priority values are tried first.
type NodeConnection struct {
	ID           int64  `json:"id"`
	SourceNodeID int64  `json:"source_node_id"`
	TargetNodeID int64  `json:"target_node_id"`
	Condition    string `json:"condition,omitempty"`
	Priority     int    `json:"priority"`
}

// FlowGraph bundles a flow with its nodes and connections.
type FlowGraph struct {
	Flow        ConversationFlow `json:"flow"`
	Nodes       []FlowNode       `json:"nodes"`
	Connections []NodeConnection `json:"connections"`
}

// Validate enforces graph integrity at write time: every node config is well
// formed, node ids are unique, and connections stay within the flow.
func (g *FlowGraph) Validate() error {
	if strings.TrimSpace(g.Flow.Name) == "" {
		return ErrEmptyFlowName
	}
	ids := make(map[int64]struct{}, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := n.Validate(); err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateNodeID, n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	for _, c := range g.Connections {
		if _, ok := ids[c.SourceNodeID]; !ok {
			return fmt.Errorf("%w: source %d", ErrForeignNode, c.SourceNodeID)
		}
		if _, ok := ids[c.TargetNodeID]; !ok {
			return fmt.Errorf("%w: target %d", ErrForeignNode, c.TargetNodeID)
		}
	}
	return nil
}
