package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	prompt    *PromptBuilder
}

// NewAnthropicClient talks to the Messages API. baseURL is optional.
func NewAnthropicClient(apiKey, model, baseURL string, maxTokens int, timeout time.Duration, prompt *PromptBuilder) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		// one attempt per message; the caller reports failures
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
		prompt:    prompt,
	}
}

func (c *AnthropicClient) Reply(
	ctx context.Context,
	message string,
	history []Message,
) (string, error) {
	log := observability.LoggerFromContext(ctx)

	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.prompt.Build(ctx)},
		},
		Messages: msgs,
	})
	if err != nil {
		log.Warn("anthropic request failed", zap.Error(err))
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyReply
	}

	log.Debug("anthropic reply",
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return sb.String(), nil
}
