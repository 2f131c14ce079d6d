// Package flow executes conversation flow graphs: typed nodes joined by
// prioritized connections, walked from a start node with a hop budget.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// NodeHandler applies the side effects of one node type to an execution.
// Condition nodes branch and are evaluated by the executor itself.
type NodeHandler interface {
	Handle(ctx context.Context, node models.FlowNode, ec *ExecutionContext) error
}

// NodeHandlerFunc adapts a function to NodeHandler.
type NodeHandlerFunc func(ctx context.Context, node models.FlowNode, ec *ExecutionContext) error

// Handle calls f.
func (f NodeHandlerFunc) Handle(ctx context.Context, node models.FlowNode, ec *ExecutionContext) error {
	return f(ctx, node, ec)
}

var registry = make(map[models.NodeType]NodeHandler)

// Register associates a NodeType with a handler, replacing any previous one.
func Register(t models.NodeType, h NodeHandler) {
	registry[t] = h
}

// Get retrieves the handler for a node type.
func Get(t models.NodeType) (NodeHandler, bool) {
	h, ok := registry[t]
	return h, ok
}

// handle runs the registered handler for node.
func handle(ctx context.Context, node models.FlowNode, ec *ExecutionContext) error {
	h, ok := Get(node.Type)
	if !ok {
		slog.Warn("flow.handle: no handler registered for node type", "type", node.Type, "node_id", node.ID)
		return nil
	}
	if node.Config == nil {
		slog.Warn("flow.handle: node has no usable config", "type", node.Type, "node_id", node.ID)
		return nil
	}
	if err := h.Handle(ctx, node, ec); err != nil {
		slog.Error("flow.handle: node handler failed", "type", node.Type, "node_id", node.ID, "error", err)
		return fmt.Errorf("%s node %d: %w", node.Type, node.ID, err)
	}
	return nil
}

// Register default handlers
func init() {
	Register(models.NodeTypeMessage, &MessageHandler{})
	Register(models.NodeTypeInput, NodeHandlerFunc(handleInput))
	Register(models.NodeTypeAction, NodeHandlerFunc(handleAction))
	Register(models.NodeTypeAPI, NodeHandlerFunc(handleAPI))
}
