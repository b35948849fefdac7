package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

// AgentClient calls a remote agent service that owns its own prompt:
// POST <baseURL>/chat {message, context, conversation_history} -> {response}.
type AgentClient struct {
	baseURL string
	client  *http.Client
	source  ContextSource
}

// StatusError is a non-2xx answer from the agent service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent service error: %d body=%s", e.Status, e.Body)
}

// NewAgentClient returns a client. source may be nil; when set, the ERP
// snapshot goes along as context.
func NewAgentClient(baseURL string, timeout time.Duration, source ContextSource) *AgentClient {
	return &AgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		source:  source,
	}
}

type agentRequest struct {
	Message             string    `json:"message"`
	Context             string    `json:"context,omitempty"`
	ConversationHistory []Message `json:"conversation_history"`
}

type agentResponse struct {
	Response string `json:"response"`
}

func (c *AgentClient) Reply(
	ctx context.Context,
	message string,
	history []Message,
) (string, error) {
	if history == nil {
		history = []Message{}
	}
	body := agentRequest{
		Message:             message,
		ConversationHistory: history,
	}
	if c.source != nil {
		if snap, err := c.source.Snapshot(ctx); err == nil {
			body.Context = snap
		} else {
			observability.LoggerFromContext(ctx).Warn("erp snapshot unavailable", zap.Error(err))
		}
	}

	var out agentResponse
	if err := c.send(ctx, "/chat", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyReply
	}
	return out.Response, nil
}

// Ping checks the service answers /health.
func (c *AgentClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

func (c *AgentClient) send(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode agent response: %w", err)
	}
	return nil
}
