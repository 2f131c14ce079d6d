package genai

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsService adapts the SDK completions service to chatService.
type completionsService struct {
	svc *openai.ChatCompletionService
}

func (c completionsService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// openAICompatible serves OpenAI and every endpoint speaking its chat
// completions protocol. A client is built per call because the API key
// belongs to the requesting user.
type openAICompatible struct {
	newChat func(apiKey string) chatService
}

func newOpenAICompatible(baseURL string, httpClient *http.Client) *openAICompatible {
	return &openAICompatible{newChat: func(apiKey string) chatService {
		cli := openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		)
		return completionsService{svc: &cli.Chat.Completions}
	}}
}

func (a *openAICompatible) complete(ctx context.Context, req Request) (string, models.Usage, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", models.Usage{}, ErrEmptyAPIKey
	}
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := a.newChat(req.APIKey).Create(ctx, params)
	if err != nil {
		return "", models.Usage{}, err
	}
	usage := models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if len(resp.Choices) == 0 {
		return "", usage, ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, usage, nil
}
