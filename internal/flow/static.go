package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/BTreeMap/BotRouter/internal/models"
)

var variablePattern = regexp.MustCompile(`\{(\w+)\}`)

// MessageHandler appends the node text, with {variable} placeholders
// substituted, to the flow response.
type MessageHandler struct{}

// Handle implements NodeHandler.
func (h *MessageHandler) Handle(_ context.Context, node models.FlowNode, ec *ExecutionContext) error {
	cfg, ok := node.Config.(models.MessageConfig)
	if !ok {
		return fmt.Errorf("%w: got %T", models.ErrNodeConfigMismatch, node.Config)
	}
	if cfg.Message == "" {
		return nil
	}
	text := ec.Substitute(cfg.Message)
	ec.AddResponse(text)
	slog.Debug("MessageHandler.Handle: message added", "node_id", node.ID, "length", len(text))
	return nil
}

func handleInput(_ context.Context, node models.FlowNode, ec *ExecutionContext) error {
	cfg, ok := node.Config.(models.InputConfig)
	if !ok {
		return fmt.Errorf("%w: got %T", models.ErrNodeConfigMismatch, node.Config)
	}
	ec.SetVariable(cfg.EffectiveVariable(), ec.UserMessage)
	slog.Debug("flow.handleInput: variable set", "node_id", node.ID, "variable", cfg.EffectiveVariable())
	return nil
}

// handleAction is an extension point; actions are only logged.
func handleAction(_ context.Context, node models.FlowNode, _ *ExecutionContext) error {
	cfg, _ := node.Config.(models.ActionConfig)
	slog.Info("flow.handleAction: action node reached", "node_id", node.ID, "action_type", cfg.ActionType)
	return nil
}

// handleAPI is an extension point; outbound calls are only logged.
func handleAPI(_ context.Context, node models.FlowNode, _ *ExecutionContext) error {
	cfg, _ := node.Config.(models.APIConfig)
	slog.Info("flow.handleAPI: api node reached", "node_id", node.ID, "method", cfg.EffectiveMethod(), "endpoint", cfg.Endpoint)
	return nil
}
