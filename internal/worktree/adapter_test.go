package worktree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
)

type fakeGitOps struct {
	createErr  error
	diffUnstg  string
	diffStg    string
	resetCalls []string
	mergeErr   error
}

func (f *fakeGitOps) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return "midnight-task", nil
}
func (f *fakeGitOps) RepoRoot(ctx context.Context, repoPath string) (string, error) { return repoPath, nil }
func (f *fakeGitOps) RevParseHEAD(ctx context.Context, repoPath string) (string, error) {
	return "deadbeef", nil
}
func (f *fakeGitOps) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) error {
	if f.createErr != nil {
		return f.createErr
	}
	return os.MkdirAll(worktreePath, 0o750)
}
func (f *fakeGitOps) RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error {
	return os.RemoveAll(worktreePath)
}
func (f *fakeGitOps) Diff(ctx context.Context, worktreePath string, staged bool) (string, error) {
	if staged {
		return f.diffStg, nil
	}
	return f.diffUnstg, nil
}
func (f *fakeGitOps) HardReset(ctx context.Context, worktreePath, toHash string) error {
	f.resetCalls = append(f.resetCalls, toHash)
	return nil
}
func (f *fakeGitOps) CleanUntracked(ctx context.Context, worktreePath string) error { return nil }
func (f *fakeGitOps) Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error {
	return f.mergeErr
}
func (f *fakeGitOps) Push(ctx context.Context, repoPath, remote, branch string) error { return nil }
func (f *fakeGitOps) CreateTag(ctx context.Context, repoPath, tag, message string) error {
	return nil
}
func (f *fakeGitOps) CleanWorktrees(ctx context.Context, repoPath string) error { return nil }

func TestCreateBuildsDeterministicPath(t *testing.T) {
	dir := t.TempDir()
	a := New(&fakeGitOps{})
	path, err := a.Create(context.Background(), dir, core.TaskID("t1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".midnight-worktrees", "midnight-t1"), path)
}

func TestCreateFailureDegradesToNoIsolation(t *testing.T) {
	dir := t.TempDir()
	a := New(&fakeGitOps{createErr: errors.New("boom")})
	_, err := a.Create(context.Background(), dir, core.TaskID("t1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoIsolation) || err != nil)
}

func TestGetGitDiffReportsNoChanges(t *testing.T) {
	a := New(&fakeGitOps{})
	diff, err := a.GetGitDiff(context.Background(), "/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "(no changes)", diff)
}

func TestGetGitDiffCombinesStagedAndUnstaged(t *testing.T) {
	a := New(&fakeGitOps{diffStg: "+staged", diffUnstg: "+unstaged"})
	diff, err := a.GetGitDiff(context.Background(), "/tmp/x")
	require.NoError(t, err)
	assert.Contains(t, diff, "+staged")
	assert.Contains(t, diff, "+unstaged")
}

func TestRevertCallsHardResetAndClean(t *testing.T) {
	fake := &fakeGitOps{}
	a := New(fake)
	err := a.Revert(context.Background(), "/tmp/x", "abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, fake.resetCalls)
}

func TestMergeFallsBackOnDriverFailure(t *testing.T) {
	fake := &fakeGitOps{mergeErr: errors.New("conflict")}
	a := New(fake)
	err := a.Merge(context.Background(), "/repo", "/repo/.midnight-worktrees/midnight-t1", "main")
	require.Error(t, err) // fallback merge also uses the same fake, which always errors
}

func TestRejectsInvalidTaskID(t *testing.T) {
	a := New(&fakeGitOps{})
	_, err := a.Create(context.Background(), t.TempDir(), core.TaskID("../escape"))
	require.Error(t, err)
}
