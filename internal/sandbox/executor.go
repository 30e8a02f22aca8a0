// Package sandbox is the bounded execution environment the Actor's tools
// run inside. Provider selection probes kata then docker then falls back
// to native (no-op) execution, using a "probe and pick first available"
// shape over the configured SandboxProvider list.
// Path containment and dangerous-command detection follow an
// IsPathAllowed/IsDangerousCommand split: one check per concern.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/fsutil"
)

// DefaultTimeout is the per-command timeout when none is supplied.
const DefaultTimeout = 30 * time.Second

// Config configures a sandbox instance
func Config(workspaceHostPath string, extraEnv map[string]string) core.SandboxConfig {
	env := map[string]string{
		"HOME": "/home/titan",
		"PATH": "/usr/local/bin:/usr/bin:/bin",
	}
	for k, v := range extraEnv {
		env[k] = v
	}
	return core.SandboxConfig{
		VCPUs:             2,
		MemoryMB:          4096,
		DiskMB:            10240,
		MaxPIDs:           100,
		NetworkOK:         true,
		WorkspaceHostPath: workspaceHostPath,
		Env:               env,
	}
}

// DangerousPatterns are textual substrings that mark a command as
// destructive regardless of sandbox provider.
func DangerousPatterns() []string {
	return []string{
		"rm -rf", "rm -fr",
		"git push --force", "git push -f",
		"git reset --hard",
		"DROP TABLE", "DELETE FROM",
		"> /dev/", ">> /dev/",
		"chmod 777", "chmod -R 777",
		"curl | sh", "curl | bash",
		"wget | sh", "wget | bash",
		":(){ :|:& };:",
		"mkfs", "dd if=",
	}
}

// IsDangerousCommand reports whether cmd matches a known destructive
// pattern. The executor does not block on this by itself — the Sentinel
// veto pre-check owns that job — it is exposed for callers that want a
// defense-in-depth check before dispatch.
func IsDangerousCommand(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, p := range DangerousPatterns() {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Executor dispatches Actor tool calls inside a bounded environment.
// Lazy-initialized on first Execute call; at most one active sandbox
// instance per Executor.
type Executor struct {
	workspaceRoot string
	providers     []core.SandboxProvider
	requestedType string

	mu       sync.Mutex
	active   core.SandboxProvider
	sandboxID string
	native   bool
}

// NewExecutor builds an Executor over a workspace root, probing providers
// in order {kata, docker}; requestedType, if non-empty, restricts the
// probe to that single provider.
func NewExecutor(workspaceRoot string, providers []core.SandboxProvider, requestedType string) *Executor {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	return &Executor{workspaceRoot: abs, providers: providers, requestedType: requestedType}
}

func (e *Executor) initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil || e.native {
		return nil
	}

	candidates := e.providers
	if e.requestedType != "" {
		candidates = nil
		for _, p := range e.providers {
			if p.Name() == e.requestedType {
				candidates = append(candidates, p)
			}
		}
	}

	for _, p := range candidates {
		if p.IsAvailable(ctx) {
			id, err := p.Create(ctx, Config(e.workspaceRoot, nil))
			if err != nil {
				continue
			}
			if err := p.Start(ctx, id); err != nil {
				_ = p.Destroy(ctx, id)
				continue
			}
			e.active = p
			e.sandboxID = id
			return nil
		}
	}

	e.native = true // no driver available: degrade to native execution
	return nil
}

// Cleanup stops and destroys the active sandbox instance. After Cleanup,
// the next Execute call re-initializes from scratch.
func (e *Executor) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		e.native = false
		return nil
	}
	_ = e.active.Stop(ctx, e.sandboxID)
	err := e.active.Destroy(ctx, e.sandboxID)
	e.active = nil
	e.sandboxID = ""
	e.native = false
	return err
}

// workspaceRel converts a tool-supplied path into a workspace-root-relative
// path; an absolute path is accepted only if it already falls under the
// root. This is only the lexical half of the containment check: file
// access goes through an os.Root opened at the workspace root
// (fsutil.ReadFileInRoot/WriteFileInRoot), which also refuses symlink
// resolutions that leave it — closing off the escape an unchecked
// absolute path or a planted symlink would otherwise allow.
func (e *Executor) workspaceRel(path string) (string, error) {
	var rel string
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(e.workspaceRoot, filepath.Clean(path))
		if err != nil {
			return "", core.ErrValidation("SANDBOX_VIOLATION", fmt.Sprintf("path %q escapes workspace root", path))
		}
		rel = r
	} else {
		rel = filepath.Clean(path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.ErrValidation("SANDBOX_VIOLATION", fmt.Sprintf("path %q escapes workspace root", path))
	}
	return rel, nil
}

// resolvePath is workspaceRel for callers that need an absolute path on
// the host (the command working directory).
func (e *Executor) resolvePath(path string) (string, error) {
	rel, err := e.workspaceRel(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(e.workspaceRoot, rel), nil
}

// Execute dispatches one named tool call and returns its textual result.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if err := e.initialize(ctx); err != nil {
		return "", err
	}

	switch name {
	case "read_file":
		return e.readFile(args)
	case "write_file":
		return e.writeFile(args)
	case "run_command":
		return e.runCommand(ctx, args)
	case "run_tests":
		return e.runTests(ctx, args)
	case "git_diff":
		return e.gitDiff(ctx, args)
	case "git_commit":
		return e.gitCommit(ctx, args)
	case "task_complete":
		summary, _ := args["summary"].(string)
		return fmt.Sprintf("Task completed: %s", summary), nil
	default:
		return "", core.ErrValidation("UNKNOWN_TOOL", fmt.Sprintf("unknown tool: %s", name))
	}
}

func (e *Executor) readFile(args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	rel, err := e.workspaceRel(path)
	if err != nil {
		return "", err
	}
	content, err := fsutil.ReadFileInRoot(e.workspaceRoot, rel)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	return string(content), nil
}

func (e *Executor) writeFile(args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	rel, err := e.workspaceRel(path)
	if err != nil {
		return "", err
	}
	if err := fsutil.WriteFileInRoot(e.workspaceRoot, rel, []byte(content), 0o640); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("Successfully wrote to %s", path), nil
}

func (e *Executor) runCommand(ctx context.Context, args map[string]interface{}) (string, error) {
	command, _ := args["command"].(string)
	cwd, _ := args["cwd"].(string)
	workdir := e.workspaceRoot
	if cwd != "" {
		resolved, err := e.resolvePath(cwd)
		if err != nil {
			return "", err
		}
		workdir = resolved
	}

	spec := core.ExecSpec{
		Command: []string{"/bin/sh", "-c", command},
		WorkDir: workdir,
		Timeout: DefaultTimeout,
	}

	e.mu.Lock()
	active, id, native := e.active, e.sandboxID, e.native
	e.mu.Unlock()

	var result *core.ExecResult
	var err error
	if !native && active != nil {
		result, err = active.Execute(ctx, id, spec)
	} else {
		result, err = e.runNative(ctx, spec)
	}
	if err != nil {
		return "", err
	}
	return formatExecResult(result), nil
}

func (e *Executor) runNative(ctx context.Context, spec core.ExecSpec) (*core.ExecResult, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	result := &core.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cctx.Err() == context.DeadlineExceeded {
		result.Killed = true
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if runErr != nil && !result.Killed {
		return nil, fmt.Errorf("running command: %w", runErr)
	}
	return result, nil
}

func formatExecResult(r *core.ExecResult) string {
	var b strings.Builder
	out := r.Stdout
	if out == "" && r.Stderr == "" {
		out = "(no output)"
	}
	b.WriteString(out)
	if r.Stderr != "" {
		fmt.Fprintf(&b, "\n[stderr] %s", r.Stderr)
	}
	if r.Killed {
		fmt.Fprintf(&b, "\n[timeout] Command killed after %dms", r.Duration.Milliseconds())
	}
	if r.ExitCode != 0 {
		fmt.Fprintf(&b, "\n[exit code] %d", r.ExitCode)
	}
	return b.String()
}

func (e *Executor) runTests(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, _ := args["pattern"].(string)
	cmd := "npm test"
	if pattern != "" {
		cmd = fmt.Sprintf("npm test -- %s", shellQuote(pattern))
	}
	return e.runCommand(ctx, map[string]interface{}{"command": cmd})
}

func (e *Executor) gitDiff(ctx context.Context, args map[string]interface{}) (string, error) {
	staged, _ := args["staged"].(bool)
	cmd := "git diff"
	if staged {
		cmd = "git diff --staged"
	}
	return e.runCommand(ctx, map[string]interface{}{"command": cmd})
}

func (e *Executor) gitCommit(ctx context.Context, args map[string]interface{}) (string, error) {
	message, _ := args["message"].(string)
	var files []string
	if raw, ok := args["files"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
	}
	addTarget := "-A"
	if len(files) > 0 {
		quoted := make([]string, len(files))
		for i, f := range files {
			quoted[i] = shellQuote(f)
		}
		addTarget = strings.Join(quoted, " ")
	}
	cmd := fmt.Sprintf("git add %s && git commit -m %s", addTarget, shellQuote(message))
	return e.runCommand(ctx, map[string]interface{}{"command": cmd})
}

// shellQuote wraps a string in single quotes for safe inclusion in a
// /bin/sh -c command line, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
