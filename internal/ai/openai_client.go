package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

var ErrEmptyReply = errors.New("model returned no text")

type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	prompt    *PromptBuilder
}

// NewOpenAIClient talks to the chat completions API. baseURL is optional.
func NewOpenAIClient(apiKey, model, baseURL string, maxTokens int, timeout time.Duration, prompt *PromptBuilder) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		prompt:    prompt,
	}
}

func (c *OpenAIClient) Reply(
	ctx context.Context,
	message string,
	history []Message,
) (string, error) {
	log := observability.LoggerFromContext(ctx)

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.prompt.Build(ctx),
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		log.Warn("openai request failed", zap.Error(err))
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}

	raw := resp.Choices[0].Message.Content
	log.Debug("openai reply", zap.Int("chars", len(raw)), zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return raw, nil
}
