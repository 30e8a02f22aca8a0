package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// NativeProvider implements core.SandboxProvider by running commands
// directly on the host, reusing Executor.runNative's exec.CommandContext
// approach. It is always available, making it the terminal entry in a
// probe chain {kata, docker, native} and the only provider cmd/midnight
// needs to wire when no container runtime is configured.
type NativeProvider struct {
	mu  sync.Mutex
	ids map[string]bool
}

// NewNativeProvider builds a NativeProvider.
func NewNativeProvider() *NativeProvider {
	return &NativeProvider{ids: make(map[string]bool)}
}

// Name identifies this provider in config and logs.
func (p *NativeProvider) Name() string { return "native" }

// IsAvailable always reports true: there is no driver to probe.
func (p *NativeProvider) IsAvailable(ctx context.Context) bool { return true }

// Create allocates a nominal sandbox ID; no actual isolated environment
// is provisioned.
func (p *NativeProvider) Create(ctx context.Context, cfg core.SandboxConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("native-%d", len(p.ids)+1)
	p.ids[id] = true
	return id, nil
}

// Start is a no-op: there is no instance to boot.
func (p *NativeProvider) Start(ctx context.Context, id string) error {
	return p.checkID(id)
}

// Stop is a no-op.
func (p *NativeProvider) Stop(ctx context.Context, id string) error {
	return p.checkID(id)
}

// Destroy forgets the sandbox ID.
func (p *NativeProvider) Destroy(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, id)
	return nil
}

func (p *NativeProvider) checkID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ids[id] {
		return core.ErrNotFound("sandbox", id)
	}
	return nil
}

// Execute runs spec.Command directly on the host inside spec.WorkDir,
// bounded by spec.Timeout.
func (p *NativeProvider) Execute(ctx context.Context, id string, spec core.ExecSpec) (*core.ExecResult, error) {
	if err := p.checkID(id); err != nil {
		return nil, err
	}
	if len(spec.Command) == 0 {
		return nil, core.ErrValidation("EMPTY_COMMAND", "native sandbox: ExecSpec.Command must not be empty")
	}

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
