package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	snap string
	err  error
}

func (s staticSource) Snapshot(context.Context) (string, error) { return s.snap, s.err }

func TestAgentClient_Reply(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "The order is confirmed."})
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL+"/", time.Second, staticSource{snap: "sales: {}\n"})
	out, err := c.Reply(context.Background(), "status of SO 4?", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Hello."},
	})
	require.NoError(t, err)
	assert.Equal(t, "The order is confirmed.", out)

	b, _ := json.Marshal(got)
	assert.JSONEq(t, `{
		"message": "status of SO 4?",
		"context": "sales: {}\n",
		"conversation_history": [
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "Hello."}
		]
	}`, string(b))
}

func TestAgentClient_EmptyHistoryIsAnArray(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewAgentClient(srv.URL, time.Second, nil).Reply(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw["conversation_history"]))
	assert.NotContains(t, raw, "context")
}

func TestAgentClient_Errors(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewAgentClient(srv.URL, time.Second, nil).Reply(context.Background(), "hi", nil)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusInternalServerError, se.Status)
		assert.Contains(t, se.Body, "upstream exploded")
	})

	t.Run("empty response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":"  "}`))
		}))
		defer srv.Close()

		_, err := NewAgentClient(srv.URL, time.Second, nil).Reply(context.Background(), "hi", nil)
		assert.ErrorIs(t, err, ErrEmptyReply)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewAgentClient(srv.URL, 50*time.Millisecond, nil).Reply(context.Background(), "hi", nil)
		assert.Error(t, err)
	})
}

func TestOpenAIClient_Reply(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Two leads are open."}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	prompt := NewPromptBuilder(staticSource{snap: "crm:\n  leads: []\n"}, []string{"write", "create"})
	c := NewOpenAIClient("sk-test", "", srv.URL+"/v1", 500, time.Second, prompt)

	out, err := c.Reply(context.Background(), "how many leads?", []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Two leads are open.", out)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "DATABASE_OPERATION:")
	assert.Contains(t, req.Messages[0].Content, "leads: []")
	assert.Equal(t, "user", req.Messages[2].Role)
	assert.Equal(t, "how many leads?", req.Messages[2].Content)
}

func TestAnthropicClient_Reply(t *testing.T) {
	var req struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "WO #882 is in progress."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("key", "claude-3-5-haiku-20241022", srv.URL, 500, time.Second, NewPromptBuilder(nil, nil))
	out, err := c.Reply(context.Background(), "status of WO 882?", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Hello."},
	})
	require.NoError(t, err)
	assert.Equal(t, "WO #882 is in progress.", out)

	assert.Equal(t, "claude-3-5-haiku-20241022", req.Model)
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0].Text, "write, create")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "assistant", req.Messages[1].Role)
}

func TestPromptBuilder_SkipsFailedSnapshot(t *testing.T) {
	b := NewPromptBuilder(staticSource{err: errors.New("odoo down")}, []string{"write"})
	out := b.Build(context.Background())
	assert.Contains(t, out, "Only these methods are accepted: write.")
	assert.NotContains(t, out, "Current ERP data")
}
