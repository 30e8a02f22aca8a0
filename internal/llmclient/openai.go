// Package llmclient is Midnight's concrete core.ChatClient: an HTTP
// gateway to an OpenAI-compatible chat-completions endpoint. Request
// shape, retry classification, and rate-limit header parsing are
// adapted from hector's llms.OpenAIProvider, narrowed to the
// non-streaming path and to core.ChatMessage/core.ChatOptions instead
// of hector's own Message/ToolDefinition types.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// Config configures the OpenAI-compatible HTTP client.
type Config struct {
	APIKey     string
	BaseURL    string // defaults to https://api.openai.com/v1
	Provider   string // name used in rate-limit errors and cooldowns; defaults to "openai"
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// Client implements core.ChatClient against an OpenAI-compatible API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. APIKey is required; everything else falls back
// to sensible defaults.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, core.ErrValidation("missing_api_key", "llmclient: APIKey is required")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function wireToolCallFn  `json:"function"`
}

type wireToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolSpec `json:"function"`
}

type wireToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
	Error   *wireError   `json:"error,omitempty"`
}

// Chat sends one chat-completions request, retrying transient failures
// with exponential backoff keyed off HTTP status: no retry on 4xx other
// than 429, bounded retries on 429/5xx.
func (c *Client) Chat(ctx context.Context, messages []core.ChatMessage, opts core.ChatOptions) (*core.ChatResponse, error) {
	req := c.buildRequest(messages, opts)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, retryable, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable || attempt == c.cfg.MaxRetries {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.RetryDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("llmclient: chat completion failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) buildRequest(messages []core.ChatMessage, opts core.ChatOptions) wireRequest {
	wireMessages := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFn{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		wireMessages[i] = wm
	}

	req := wireRequest{
		Model:       opts.Model,
		Messages:    wireMessages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if len(opts.Tools) > 0 {
		req.Tools = make([]wireTool, len(opts.Tools))
		for i, t := range opts.Tools {
			req.Tools[i] = wireTool{
				Type: "function",
				Function: wireToolSpec{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		req.ToolChoice = "auto"
	}
	return req
}

// attempt makes one HTTP round-trip, classifying the error as retryable
// (rate limit or server error) or terminal (bad request, auth failure,
// malformed response).
func (c *Client) attempt(ctx context.Context, req wireRequest) (*core.ChatResponse, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, c.rateLimitError(resp, respBody)
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, respBody)
	}

	var wr wireResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return nil, false, fmt.Errorf("decoding response: %w", err)
	}
	if wr.Error != nil {
		return nil, false, fmt.Errorf("api error: %s", wr.Error.Message)
	}
	if len(wr.Choices) == 0 {
		return nil, false, fmt.Errorf("no choices returned")
	}

	choice := wr.Choices[0]
	out := &core.ChatResponse{
		Content: choice.Message.Content,
		Usage: core.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, false, fmt.Errorf("parsing tool call arguments: %w", err)
		}
		out.ToolCalls = append(out.ToolCalls, core.ChatToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, false, nil
}

// rateLimitError builds a typed rate-limit error so callers can enter a
// provider cooldown instead of treating 429 as a generic failure.
func (c *Client) rateLimitError(resp *http.Response, body []byte) error {
	msg := fmt.Sprintf("rate limited: %s", body)
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			msg = fmt.Sprintf("rate limited, retry after %ds: %s", secs, body)
		}
	}
	return core.ErrRateLimit(c.cfg.Provider, msg)
}
