package llmclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/llmclient"
)

func TestChat_ReturnsContentOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello"}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	c, err := llmclient.New(llmclient.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), []core.ChatMessage{{Role: "user", Content: "hi"}}, core.ChatOptions{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
}

func TestChat_RetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	}))
	defer srv.Close()

	c, err := llmclient.New(llmclient.Config{APIKey: "k", BaseURL: srv.URL, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), []core.ChatMessage{{Role: "user", Content: "hi"}}, core.ChatOptions{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestChat_TerminalErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	c, err := llmclient.New(llmclient.Config{APIKey: "k", BaseURL: srv.URL, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), []core.ChatMessage{{Role: "user", Content: "hi"}}, core.ChatOptions{Model: "gpt-4"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := llmclient.New(llmclient.Config{})
	require.Error(t, err)
}

func TestChat_ParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{"id": "call_1", "type": "function", "function": map[string]any{"name": "read_file", "arguments": `{"path":"a.go"}`}},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c, err := llmclient.New(llmclient.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Chat(context.Background(), []core.ChatMessage{{Role: "user", Content: "hi"}}, core.ChatOptions{
		Model: "gpt-4",
		Tools: []core.ToolSchema{{Name: "read_file", Description: "reads a file"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, "a.go", resp.ToolCalls[0].Arguments["path"])
}
