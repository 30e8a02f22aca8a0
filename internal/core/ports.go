package core

import (
	"context"
	"time"
)

// =============================================================================
// ChatClient Port — the LLM provider transport (out of scope; consumed only)
// =============================================================================

// ChatMessage is one turn of a ChatClient conversation.
type ChatMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCallID string // set on role "tool"
	ToolCalls  []ChatToolCall
}

// ChatToolCall is a tool invocation the model requested.
type ChatToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolSchema declares one tool's static parameter schema, so model-authored
// arguments can be parsed into a typed record instead of reflected at runtime.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema, passed through verbatim
}

// ChatOptions configures one ChatClient.Chat call.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Effort      ThinkingEffort
	Tools       []ToolSchema
}

// ChatUsage reports token accounting for one call.
type ChatUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatResponse is a ChatClient.Chat result.
type ChatResponse struct {
	Content   string
	ToolCalls []ChatToolCall
	Usage     ChatUsage
}

// ChatClient is the capability the Actor and Sentinel depend on for model
// calls. The concrete HTTP chat-completions gateway is an external
// collaborator; Midnight only ever talks to this interface.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error)
}

// =============================================================================
// SandboxProvider Port — concrete container/VM drivers (out of scope)
// =============================================================================

// SandboxConfig describes the bounded execution environment to create.
type SandboxConfig struct {
	VCPUs      int
	MemoryMB   int
	DiskMB     int
	MaxPIDs    int
	NetworkOK  bool
	WorkspaceHostPath string
	Env        map[string]string
}

// ExecSpec is one command to run inside a sandbox instance.
type ExecSpec struct {
	Command []string
	WorkDir string
	Env     map[string]string
	Stdin   string
	Timeout time.Duration
}

// ExecResult is the outcome of one sandboxed command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Killed   bool
}

// SandboxProvider is a probe-and-use driver for one sandbox backend
// (kata, docker, or the native no-op fallback).
type SandboxProvider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Create(ctx context.Context, cfg SandboxConfig) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Destroy(ctx context.Context, id string) error
	Execute(ctx context.Context, id string, spec ExecSpec) (*ExecResult, error)
}

// =============================================================================
// GitOps Port — the git driver (out of scope; consumed only)
// =============================================================================

// GitOps is the capability the worktree adapter and hand-off depend on.
type GitOps interface {
	CurrentBranch(ctx context.Context, repoPath string) (string, error)
	RepoRoot(ctx context.Context, repoPath string) (string, error)
	RevParseHEAD(ctx context.Context, repoPath string) (string, error)

	CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) error
	RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error

	Diff(ctx context.Context, worktreePath string, staged bool) (string, error)
	HardReset(ctx context.Context, worktreePath, toHash string) error
	CleanUntracked(ctx context.Context, worktreePath string) error
	Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error

	Push(ctx context.Context, repoPath, remote, branch string) error
	CreateTag(ctx context.Context, repoPath, tag, message string) error
	CleanWorktrees(ctx context.Context, repoPath string) error
}

// =============================================================================
// RepoMapProvider Port — the symbol-graph producer (out of scope)
// =============================================================================

// RepoMapProvider summarizes a project's source tree for the Sentinel and
// the Actor's context. The concrete implementation (AST/symbol indexing)
// is an external collaborator; a fallback file listing is an acceptable
// degenerate implementation.
type RepoMapProvider interface {
	GetRepoMap(ctx context.Context, projectPath string) (string, error)
}

// =============================================================================
// ProjectLoader Port — DNA loading/validation/extraction
// =============================================================================

// ExtractedTask is one task description ProjectLoader.ExtractTasks derives
// from a project's DNA, before it is assigned an id by the store.
type ExtractedTask struct {
	Description  string
	Priority     int
	Dependencies []int // indices into the returned slice, resolved by the caller
}

// ProjectLoader loads and interprets a project's three-file DNA.
type ProjectLoader interface {
	LoadDNA(ctx context.Context, path string) (*ProjectDNA, error)
	ValidateDNA(dna *ProjectDNA) (valid bool, errs []string)
	ExtractTasks(ctx context.Context, dna *ProjectDNA) ([]ExtractedTask, error)
}

// =============================================================================
// DeploymentTrigger Port — optional hand-off step (out of scope)
// =============================================================================

// DeploymentTrigger is consulted by the hand-off phase if configured.
type DeploymentTrigger interface {
	Trigger(ctx context.Context, projectPath, branch string) (bool, error)
}
