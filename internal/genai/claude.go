package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
)

const (
	anthropicVersion = "2023-06-01"
	maxResponseBytes = 4 << 20
	defaultClaudeMax = 1024
)

// claudeAdapter calls the Anthropic Messages API. The system prompt is a top
// level field rather than a message.
type claudeAdapter struct {
	baseURL    string
	httpClient *http.Client
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int64           `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type claudeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *claudeAdapter) complete(ctx context.Context, req Request) (string, models.Usage, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", models.Usage{}, ErrEmptyAPIKey
	}
	payload := claudeRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []claudeMessage{{Role: "user", Content: req.User}},
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultClaudeMax
	}
	if req.Temperature != nil {
		t := *req.Temperature
		payload.Temperature = &t
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(a.baseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", models.Usage{}, err
	}
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", models.Usage{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", models.Usage{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr claudeError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", models.Usage{}, fmt.Errorf("%s (HTTP %d)", apiErr.Error.Message, resp.StatusCode)
		}
		slog.Debug("claudeAdapter.complete: request failed", "status", resp.StatusCode, "body", string(respBody))
		return "", models.Usage{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var out claudeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", models.Usage{}, fmt.Errorf("failed to decode response: %w", err)
	}
	usage := models.Usage{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in response")
}
