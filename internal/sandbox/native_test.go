package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
)

func TestNativeProviderIsAlwaysAvailable(t *testing.T) {
	p := NewNativeProvider()
	assert.True(t, p.IsAvailable(context.Background()))
	assert.Equal(t, "native", p.Name())
}

func TestNativeProviderExecutesCommand(t *testing.T) {
	p := NewNativeProvider()
	ctx := context.Background()

	id, err := p.Create(ctx, core.SandboxConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx, id))

	result, err := p.Execute(ctx, id, core.ExecSpec{Command: []string{"echo", "hi"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hi")

	require.NoError(t, p.Stop(ctx, id))
	require.NoError(t, p.Destroy(ctx, id))
}

func TestNativeProviderExecuteRejectsUnknownID(t *testing.T) {
	p := NewNativeProvider()
	_, err := p.Execute(context.Background(), "nope", core.ExecSpec{Command: []string{"echo", "hi"}})
	require.Error(t, err)
}

func TestNativeProviderExecuteCapturesNonZeroExit(t *testing.T) {
	p := NewNativeProvider()
	ctx := context.Background()
	id, err := p.Create(ctx, core.SandboxConfig{})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx, id))

	result, err := p.Execute(ctx, id, core.ExecSpec{Command: []string{"sh", "-c", "exit 7"}})
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestExecutorWithNativeProviderRoutesThroughProvider(t *testing.T) {
	e := NewExecutor(t.TempDir(), []core.SandboxProvider{NewNativeProvider()}, "")
	out, err := e.Execute(context.Background(), "run_command", map[string]interface{}{"command": "echo routed"})
	require.NoError(t, err)
	assert.Contains(t, out, "routed")
}
