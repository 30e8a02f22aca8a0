package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
)

func TestReadWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(dir, nil, "")

	out, err := e.Execute(context.Background(), "write_file", map[string]interface{}{
		"path": "hello.txt", "content": "hi there",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully wrote to hello.txt")

	content, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(content))

	out, err = e.Execute(context.Background(), "read_file", map[string]interface{}{"path": "hello.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestReadFileMissingReturnsErrorString(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	out, err := e.Execute(context.Background(), "read_file", map[string]interface{}{"path": "nope.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "Error reading file")
}

func TestRunCommandNativeFallbackNoOutput(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	out, err := e.Execute(context.Background(), "run_command", map[string]interface{}{"command": "true"})
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out)
}

func TestRunCommandCapturesStdout(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	out, err := e.Execute(context.Background(), "run_command", map[string]interface{}{"command": "echo hi"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi")
}

func TestRunCommandNonZeroExitAppendsExitCode(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	out, err := e.Execute(context.Background(), "run_command", map[string]interface{}{"command": "exit 3"})
	require.NoError(t, err)
	assert.Contains(t, out, "[exit code] 3")
}

func TestTaskCompleteLiteral(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	out, err := e.Execute(context.Background(), "task_complete", map[string]interface{}{"summary": "done"})
	require.NoError(t, err)
	assert.Equal(t, "Task completed: done", out)
}

func TestUnknownToolErrors(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	_, err := e.Execute(context.Background(), "frobnicate", nil)
	require.Error(t, err)
}

func TestWriteFileRejectsPathEscapingWorkspaceRoot(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	_, err := e.Execute(context.Background(), "write_file", map[string]interface{}{
		"path": "../../etc/passwd", "content": "pwned",
	})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestReadFileRejectsAbsolutePathOutsideWorkspaceRoot(t *testing.T) {
	e := NewExecutor(t.TempDir(), nil, "")
	_, err := e.Execute(context.Background(), "read_file", map[string]interface{}{"path": "/etc/passwd"})
	require.Error(t, err)
}

func TestReadFileRefusesSymlinkEscapingWorkspaceRoot(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o640))

	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "link.txt")))
	e := NewExecutor(dir, nil, "")

	// Lexically the path is inside the workspace; the root-scoped open
	// still refuses to follow the symlink out.
	out, err := e.Execute(context.Background(), "read_file", map[string]interface{}{"path": "link.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "Error reading file")
}

func TestReadFileAllowsAbsolutePathUnderWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inside.txt"), []byte("ok"), 0o640))
	e := NewExecutor(dir, nil, "")

	out, err := e.Execute(context.Background(), "read_file", map[string]interface{}{"path": filepath.Join(dir, "inside.txt")})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestIsDangerousCommand(t *testing.T) {
	assert.True(t, IsDangerousCommand("rm -rf /"))
	assert.True(t, IsDangerousCommand("git push --force origin main"))
	assert.False(t, IsDangerousCommand("ls -la"))
}

// fakeProvider lets tests exercise the probe-and-pick-first-available path.
type fakeProvider struct {
	name      string
	available bool
	created   bool
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeProvider) Create(ctx context.Context, cfg core.SandboxConfig) (string, error) {
	f.created = true
	return "sandbox-1", nil
}
func (f *fakeProvider) Start(ctx context.Context, id string) error   { return nil }
func (f *fakeProvider) Stop(ctx context.Context, id string) error    { return nil }
func (f *fakeProvider) Destroy(ctx context.Context, id string) error { return nil }
func (f *fakeProvider) Execute(ctx context.Context, id string, spec core.ExecSpec) (*core.ExecResult, error) {
	return &core.ExecResult{Stdout: "from-sandbox"}, nil
}

func TestProbePicksFirstAvailableProvider(t *testing.T) {
	kata := &fakeProvider{name: "kata", available: false}
	docker := &fakeProvider{name: "docker", available: true}
	e := NewExecutor(t.TempDir(), []core.SandboxProvider{kata, docker}, "")

	out, err := e.Execute(context.Background(), "run_command", map[string]interface{}{"command": "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "from-sandbox", out)
	assert.False(t, kata.created)
	assert.True(t, docker.created)
}
