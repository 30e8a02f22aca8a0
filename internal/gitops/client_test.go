package gitops_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/gitops"
)

// testRepo is a throwaway git repository backed by the real git binary.
type testRepo struct {
	t    *testing.T
	path string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	r := &testRepo{t: t, path: dir}
	r.run("init")
	r.run("config", "user.email", "test@example.com")
	r.run("config", "user.name", "Test User")
	r.run("checkout", "-b", "main")
	return r
}

func (r *testRepo) run(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %v: %s", args, out)
	return string(out)
}

func (r *testRepo) writeAndCommit(name, content, message string) {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.path, name), []byte(content), 0o644))
	r.run("add", name)
	r.run("commit", "-m", message)
}

func TestClient_RepoRootAndBranch(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("README.md", "# test", "initial")

	c, err := gitops.New()
	require.NoError(t, err)

	root, err := c.RepoRoot(context.Background(), repo.path)
	require.NoError(t, err)
	require.Equal(t, repo.path, root)

	branch, err := c.CurrentBranch(context.Background(), repo.path)
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestClient_RevParseHEAD(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("a.txt", "a", "first")

	c, err := gitops.New()
	require.NoError(t, err)

	want := repo.run("rev-parse", "HEAD")
	got, err := c.RevParseHEAD(context.Background(), repo.path)
	require.NoError(t, err)
	require.Contains(t, want, got)
}

func TestClient_CreateAndRemoveWorktree(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("a.txt", "a", "first")

	c, err := gitops.New()
	require.NoError(t, err)

	wtPath := filepath.Join(t.TempDir(), "wt")
	ctx := context.Background()
	require.NoError(t, c.CreateWorktree(ctx, repo.path, wtPath, "feature/x"))

	_, err = os.Stat(filepath.Join(wtPath, "a.txt"))
	require.NoError(t, err)

	require.NoError(t, c.RemoveWorktree(ctx, repo.path, wtPath))
}

func TestClient_DiffAndHardReset(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("a.txt", "a", "first")

	c, err := gitops.New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(repo.path, "a.txt"), []byte("b"), 0o644))
	diff, err := c.Diff(ctx, repo.path, false)
	require.NoError(t, err)
	require.Contains(t, diff, "-a")

	head, err := c.RevParseHEAD(ctx, repo.path)
	require.NoError(t, err)
	require.NoError(t, c.HardReset(ctx, repo.path, head))

	content, err := os.ReadFile(filepath.Join(repo.path, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "a", string(content))
}

func TestClient_MergeAndPush(t *testing.T) {
	remote := newTestRepo(t)
	remote.writeAndCommit("a.txt", "a", "first")
	remote.run("config", "receive.denyCurrentBranch", "updateInstead")

	clone := t.TempDir()
	cmd := exec.Command("git", "clone", remote.path, clone)
	require.NoError(t, cmd.Run())
	cloneRepo := &testRepo{t: t, path: clone}
	cloneRepo.run("config", "user.email", "test@example.com")
	cloneRepo.run("config", "user.name", "Test User")

	c, err := gitops.New()
	require.NoError(t, err)
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, c.CreateWorktree(ctx, clone, wtPath, "feature/y"))

	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "b.txt"), []byte("b"), 0o644))
	wt := &testRepo{t: t, path: wtPath}
	wt.run("add", "b.txt")
	wt.run("commit", "-m", "add b")

	require.NoError(t, c.Merge(ctx, clone, wtPath, "main"))
	_, err = os.Stat(filepath.Join(clone, "b.txt"))
	require.NoError(t, err)
}

func TestClient_CreateTag(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("a.txt", "a", "first")

	c, err := gitops.New()
	require.NoError(t, err)

	require.NoError(t, c.CreateTag(context.Background(), repo.path, "v0.0.1", "release"))
	out := repo.run("tag", "-l", "v0.0.1")
	require.Contains(t, out, "v0.0.1")
}

func TestClient_CleanUntrackedAndWorktrees(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeAndCommit("a.txt", "a", "first")

	c, err := gitops.New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(repo.path, "junk.txt"), []byte("x"), 0o644))
	require.NoError(t, c.CleanUntracked(ctx, repo.path))
	_, err = os.Stat(filepath.Join(repo.path, "junk.txt"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, c.CleanWorktrees(ctx, repo.path))
}
