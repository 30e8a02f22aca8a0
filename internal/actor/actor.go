// Package actor implements the worker agent: it runs an iterative
// chat/tool loop against the core.ChatClient port and a sandboxed
// executor to produce a code change for one task: message accumulation,
// per-tool-call dispatch, and a bounded iterate-until-done loop.
package actor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// MaxIterations bounds one Actor attempt's tool-call loop.
const MaxIterations = 20

// completionPhrases are case-insensitively matched against assistant
// content as an alternate completion signal to an explicit task_complete
// tool call.
var completionPhrases = []string{
	"task complete", "implementation complete", "ready for review", "done implementing",
}

// ToolExecutor performs one Actor tool call. internal/sandbox.Executor
// satisfies this.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Context is the input to one Actor.Execute call.
type Context struct {
	Task              *core.Task
	ProjectIdeaText   string
	PreviousAttempts  []string
	WorktreePath      string
}

// Config configures the Actor's model call and allowed tool surface.
type Config struct {
	Model     string
	MaxTokens int
	AllowList []string // tool names exposed to the model; nil means all
}

// Actor drives one task to a TaskResult via tool use.
type Actor struct {
	chat     core.ChatClient
	executor ToolExecutor
	cfg      Config
}

// New builds an Actor over a chat client and tool executor.
func New(chat core.ChatClient, executor ToolExecutor, cfg Config) *Actor {
	return &Actor{chat: chat, executor: executor, cfg: cfg}
}

var allTools = []core.ToolSchema{
	{Name: "read_file", Description: "Read a file's contents", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}}, "required": []string{"path"},
	}},
	{Name: "write_file", Description: "Write content to a file", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string"}, "content": map[string]interface{}{"type": "string"},
		}, "required": []string{"path", "content"},
	}},
	{Name: "run_command", Description: "Run a shell command", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string"}, "cwd": map[string]interface{}{"type": "string"},
		}, "required": []string{"command"},
	}},
	{Name: "run_tests", Description: "Run the project's test suite", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{"pattern": map[string]interface{}{"type": "string"}},
	}},
	{Name: "git_diff", Description: "Show the current diff", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{"staged": map[string]interface{}{"type": "boolean"}},
	}},
	{Name: "git_commit", Description: "Commit staged changes", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
			"files":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		}, "required": []string{"message"},
	}},
	{Name: "task_complete", Description: "Signal the task is done", Parameters: map[string]interface{}{
		"type": "object", "properties": map[string]interface{}{"summary": map[string]interface{}{"type": "string"}},
	}},
}

func (a *Actor) tools() []core.ToolSchema {
	if len(a.cfg.AllowList) == 0 {
		return allTools
	}
	allowed := make(map[string]bool, len(a.cfg.AllowList))
	for _, n := range a.cfg.AllowList {
		allowed[n] = true
	}
	out := make([]core.ToolSchema, 0, len(allTools))
	for _, t := range allTools {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func artifactKindFor(tool string) core.ArtifactKind {
	switch tool {
	case "write_file":
		return core.ArtifactFileWrite
	case "git_diff":
		return core.ArtifactDiff
	case "run_command":
		return core.ArtifactExecutedCommand
	case "run_tests":
		return core.ArtifactTestRun
	default:
		return core.ArtifactExecutedCommand
	}
}

const systemPrompt = `You are the Actor: a worker agent with full read/write/execute access inside an isolated sandbox. Use the available tools to make the code change described below. Call task_complete once the implementation satisfies the task, or state clearly in your final message that the task is complete.`

func buildUserTurn(c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", c.Task.Description)
	fmt.Fprintf(&b, "Project context:\n%s\n\n", c.ProjectIdeaText)
	if len(c.PreviousAttempts) > 0 {
		b.WriteString("Previous attempts (most recent last):\n")
		for i, attempt := range c.PreviousAttempts {
			fmt.Fprintf(&b, "--- attempt %d ---\n%s\n", i+1, attempt)
		}
	}
	fmt.Fprintf(&b, "\nWorktree: %s\n", c.WorktreePath)
	return b.String()
}

func hasCompletionPhrase(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Execute runs the Actor's iterate-until-done loop for one task.
func (a *Actor) Execute(ctx context.Context, c Context) *core.TaskResult {
	messages := []core.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserTurn(c)},
	}

	result := &core.TaskResult{}
	start := time.Now()
	iterations := 0
	toolCalls := 0

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Errors = append(result.Errors, core.ResultError{
				Code: core.CodeActorError, Message: fmt.Sprintf("panic: %v", r), Recoverable: true,
			})
		}
	}()

	for iterations < MaxIterations {
		iterations++

		resp, err := a.chat.Chat(ctx, messages, core.ChatOptions{
			Model: a.cfg.Model, MaxTokens: a.cfg.MaxTokens, Tools: a.tools(),
		})
		if err != nil {
			if core.IsCategory(err, core.ErrCatRateLimit) {
				// Non-recoverable from inside this attempt; the orchestrator
				// turns it into a provider cooldown and resumes later.
				result.Errors = append(result.Errors, core.ResultError{
					Code: core.CodeRateLimited, Message: err.Error(), Recoverable: false,
				})
			} else {
				result.Errors = append(result.Errors, core.ResultError{
					Code: core.CodeActorError, Message: err.Error(), Recoverable: true,
				})
			}
			break
		}

		result.Metrics.TokensUsed += resp.Usage.PromptTokens + resp.Usage.CompletionTokens
		messages = append(messages, core.ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		taskComplete := false
		abort := false
		for _, call := range resp.ToolCalls {
			toolCalls++
			if call.Name == "task_complete" {
				taskComplete = true
			}

			output, execErr := a.executor.Execute(ctx, call.Name, call.Arguments)
			if execErr != nil {
				output = fmt.Sprintf("Error: %v", execErr)
				result.Errors = append(result.Errors, core.ResultError{
					Code: "TOOL_ERROR", Message: execErr.Error(), Recoverable: true,
				})
			} else {
				result.Artifacts = append(result.Artifacts, core.Artifact{
					Kind: artifactKindFor(call.Name), Summary: truncate(output, 200),
				})
			}

			messages = append(messages, core.ChatMessage{Role: "tool", Content: output, ToolCallID: call.ID})

			if result.HasNonRecoverableError() {
				abort = true
			}
		}

		if abort {
			break
		}
		if taskComplete || hasCompletionPhrase(resp.Content) {
			result.Success = true
			break
		}
	}

	result.Metrics.Iterations = iterations
	result.Metrics.ToolCalls = toolCalls
	result.Metrics.LatencyMillis = time.Since(start).Milliseconds()
	result.OutputSummary = summarizeTail(messages, 5)
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func summarizeTail(messages []core.ChatMessage, n int) string {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, truncate(m.Content, 400))
	}
	return strings.TrimSpace(b.String())
}
