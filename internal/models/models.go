// Package models defines the core data structures for BotRouter.
//
// It includes the conversation flow graph, canned response configuration, bot
// identity settings, knowledge entities and the chat request/response envelopes
// shared across modules.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for an inbound chat message
	MaxMessageLength = 4096
	// MaxHistoryExchanges defines how many prior exchanges a chat request may carry
	MaxHistoryExchanges = 20
	// ContextHistoryExchanges is how many of the most recent exchanges feed prompt context
	ContextHistoryExchanges = 5
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrTooManyExchanges   = errors.New("history exceeds maximum number of exchanges")
	ErrEmptyFlowName      = errors.New("flow name cannot be empty")
	ErrInvalidNodeType    = errors.New("invalid node type")
	ErrMissingNodeConfig  = errors.New("node config is required")
	ErrNodeConfigMismatch = errors.New("node config does not match node type")
	ErrEmptyNodeMessage   = errors.New("message node requires a message")
	ErrInvalidOperator    = errors.New("invalid condition operator")
	ErrInvalidPattern     = errors.New("invalid condition pattern")
	ErrEmptyVariableName  = errors.New("input node variable name cannot be empty")
	ErrDuplicateNodeID    = errors.New("duplicate node id in flow")
	ErrForeignNode        = errors.New("connection references a node outside the flow")
	ErrEmptyTriggers      = errors.New("quick response requires at least one trigger")
	ErrEmptyContent       = errors.New("content cannot be empty")
	ErrEmptyQuestion      = errors.New("faq question cannot be empty")
	ErrEmptyRuleName      = errors.New("rule name cannot be empty")
	ErrInvalidProvider    = errors.New("invalid provider")
)

// Exchange is one prior user/bot turn carried with a chat request.
type Exchange struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// ChatRequest is the inbound message routed through the decision pipeline.
type ChatRequest struct {
	Message string     `json:"message"`
	UserID  int64      `json:"user_id,omitempty"`
	History []Exchange `json:"history,omitempty"`
}

// Validate checks the request before it reaches the decision engine.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if len(r.History) > MaxHistoryExchanges {
		return ErrTooManyExchanges
	}
	return nil
}

// RecentHistory returns the exchanges used as prompt context, oldest first.
func (r *ChatRequest) RecentHistory() []Exchange {
	if len(r.History) <= ContextHistoryExchanges {
		return r.History
	}
	return r.History[len(r.History)-ContextHistoryExchanges:]
}

// ResponseMode tells the caller which stage produced a chat response.
type ResponseMode string

const (
	ModeFlow       ResponseMode = "flow"
	ModeConfigured ResponseMode = "configured"
	ModeUserKeys   ResponseMode = "user_keys"
	ModeFallback   ResponseMode = "fallback"
	ModeError      ResponseMode = "error"
)

// Usage reports provider token accounting.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatMetadata describes how a chat response was produced.
type ChatMetadata struct {
	Source            string  `json:"source"`
	Complexity        *int    `json:"complexity,omitempty"`
	HasKnowledge      *bool   `json:"has_knowledge,omitempty"`
	Provider          string  `json:"provider,omitempty"`
	Model             string  `json:"model,omitempty"`
	ProcessingTime    float64 `json:"processing_time"`
	IdentityCorrected *bool   `json:"identity_corrected,omitempty"`
	Usage             *Usage  `json:"usage,omitempty"`
	FlowName          string  `json:"flow_name,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// ChatResponse is the outbound answer for the route layer.
type ChatResponse struct {
	Message   string       `json:"message"`
	Mode      ResponseMode `json:"mode"`
	RequestID string       `json:"request_id,omitempty"`
	Metadata  ChatMetadata `json:"metadata"`
	Success   bool         `json:"success"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
