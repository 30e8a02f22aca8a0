package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
)

type fakeActor struct {
	results []*core.TaskResult
	calls   int
}

func (f *fakeActor) Execute(ctx context.Context, c ActorContext) *core.TaskResult {
	r := f.results[f.calls]
	f.calls++
	return r
}

type fakeSentinel struct {
	verdicts []*core.SentinelVerdict
	calls    int
}

func (f *fakeSentinel) Verify(ctx context.Context, c SentinelContext) *core.SentinelVerdict {
	v := f.verdicts[f.calls]
	f.calls++
	return v
}

type fakeWorktrees struct {
	diff        string
	revertCalls []string
	mergeCalls  int
	deleteCalls int
}

func (f *fakeWorktrees) Create(ctx context.Context, projectPath string, taskID core.TaskID) (string, error) {
	return projectPath + "/.wt/" + string(taskID), nil
}
func (f *fakeWorktrees) GetGitDiff(ctx context.Context, worktreePath string) (string, error) {
	return f.diff, nil
}
func (f *fakeWorktrees) Revert(ctx context.Context, worktreePath, toHash string) error {
	f.revertCalls = append(f.revertCalls, toHash)
	return nil
}
func (f *fakeWorktrees) Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error {
	f.mergeCalls++
	return nil
}
func (f *fakeWorktrees) Delete(ctx context.Context, projectPath, worktreePath string) error {
	f.deleteCalls++
	return nil
}

type fakeRepoMap struct{}

func (fakeRepoMap) GetRepoMap(ctx context.Context, projectPath string) (string, error) {
	return "repo map", nil
}

func newTask() *core.Task {
	return core.NewTask(core.ProjectID("p1"), "add readme", 1, nil)
}

func TestRunSucceedsOnFirstPassingVerdict(t *testing.T) {
	actor := &fakeActor{results: []*core.TaskResult{{Success: true, OutputSummary: "done"}}}
	sent := &fakeSentinel{verdicts: []*core.SentinelVerdict{{Passed: true, QualityScore: 92}}}
	wt := &fakeWorktrees{diff: "+ readme"}
	loop := New(actor, sent, wt, fakeRepoMap{}, nil, events.New(16), Config{MaxRetries: 3})

	result := loop.Run(context.Background(), newTask(), ProjectInput{ProjectID: "p1", ProjectPath: "/repo"})
	require.True(t, result.Success)
	assert.Len(t, result.Verdicts, 1)
	assert.NotEmpty(t, result.NewVerifiedHash)
	// The approved worktree was merged back and cleaned up.
	assert.Equal(t, 1, wt.mergeCalls)
	assert.Equal(t, 1, wt.deleteCalls)
}

func TestRunLocksAfterMaxRetries(t *testing.T) {
	actor := &fakeActor{results: []*core.TaskResult{
		{Success: true, OutputSummary: "a1"},
		{Success: true, OutputSummary: "a2"},
	}}
	sent := &fakeSentinel{verdicts: []*core.SentinelVerdict{
		{Passed: false, QualityScore: 60, CorrectionDirective: "fix it"},
		{Passed: false, QualityScore: 60, CorrectionDirective: "fix it"},
	}}
	wt := &fakeWorktrees{diff: "+ something"}
	loop := New(actor, sent, wt, fakeRepoMap{}, nil, events.New(16), Config{MaxRetries: 2, EnableRevert: true})

	result := loop.Run(context.Background(), newTask(), ProjectInput{ProjectID: "p1", ProjectPath: "/repo", LastVerifiedHash: "abc"})
	require.False(t, result.Success)
	assert.Len(t, result.Verdicts, 2)
	require.NotEmpty(t, result.TaskResult.Errors)
	assert.Equal(t, core.CodeMaxRetries, result.TaskResult.Errors[len(result.TaskResult.Errors)-1].Code)
	assert.False(t, result.TaskResult.Errors[len(result.TaskResult.Errors)-1].Recoverable)
	assert.Equal(t, []string{"abc", "abc"}, wt.revertCalls)
}

func TestRunVetoPreCheckSkipsModelCall(t *testing.T) {
	actor := &fakeActor{results: []*core.TaskResult{
		{Success: true, OutputSummary: "a1"},
		{Success: true, OutputSummary: "a2"},
	}}
	sent := &fakeSentinel{verdicts: []*core.SentinelVerdict{{Passed: true, QualityScore: 90}}}
	wt := &fakeWorktrees{diff: `+ api_key = "AKIA0123456789ABCDEFGHIJ"`}
	checkVeto := func(diff string) []string {
		if diff == wt.diff {
			return []string{"hardcoded secret"}
		}
		return nil
	}
	loop := New(actor, sent, wt, fakeRepoMap{}, checkVeto, events.New(16), Config{MaxRetries: 2, EnableVeto: true})

	result := loop.Run(context.Background(), newTask(), ProjectInput{ProjectID: "p1", ProjectPath: "/repo"})
	// First attempt auto-vetoed without consulting sentinel.Verify (calls stays 0 after
	// attempt 1); second attempt's diff is still the same fake value so it also vetoes,
	// exhausting retries without ever calling the real sentinel.
	assert.False(t, result.Success)
	assert.Equal(t, 0, sent.calls)
	assert.Equal(t, 2, result.VetoCount)
}

func TestRunAbortsOnNonRecoverableActorError(t *testing.T) {
	actor := &fakeActor{results: []*core.TaskResult{
		{Success: false, Errors: []core.ResultError{{Code: "ACTOR_ERROR", Recoverable: false, Message: "boom"}}},
	}}
	sent := &fakeSentinel{}
	loop := New(actor, sent, &fakeWorktrees{}, fakeRepoMap{}, nil, events.New(16), Config{MaxRetries: 3})

	result := loop.Run(context.Background(), newTask(), ProjectInput{ProjectID: "p1", ProjectPath: "/repo"})
	assert.False(t, result.Success)
	assert.Equal(t, 1, actor.calls)
}
