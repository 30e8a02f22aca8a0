// Package gitops is Midnight's concrete core.GitOps driver: it shells
// out to the system git binary, narrowed to the operations
// internal/worktree, internal/agentloop, and internal/handoff actually
// call (CurrentBranch, RepoRoot, RevParseHEAD, worktree create/remove,
// diff, hard reset, clean, merge, push, tag).
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// Client drives git via the system binary.
type Client struct {
	gitPath string
	timeout time.Duration
}

// New resolves the git binary on PATH. A missing binary is reported
// immediately rather than surfacing as a confusing exec error later.
func New() (*Client, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git binary not found on PATH: %w", err)
	}
	return &Client{gitPath: path, timeout: 30 * time.Second}, nil
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.gitPath, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout("git command timed out")
		}
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentBranch returns the checked-out branch name at repoPath.
func (c *Client) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return c.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
}

// RepoRoot returns the top-level directory of the repository containing
// repoPath.
func (c *Client) RepoRoot(ctx context.Context, repoPath string) (string, error) {
	return c.run(ctx, repoPath, "rev-parse", "--show-toplevel")
}

// RevParseHEAD returns the current commit hash at repoPath.
func (c *Client) RevParseHEAD(ctx context.Context, repoPath string) (string, error) {
	return c.run(ctx, repoPath, "rev-parse", "HEAD")
}

// CreateWorktree adds a new worktree at worktreePath on a fresh branch,
// probing whether the branch already exists before choosing -b.
func (c *Client) CreateWorktree(ctx context.Context, repoPath, worktreePath, branch string) error {
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o750); err != nil {
		return fmt.Errorf("creating worktree parent directory: %w", err)
	}
	_, err := c.run(ctx, repoPath, "worktree", "add", "-b", branch, worktreePath)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		_, err = c.run(ctx, repoPath, "worktree", "add", worktreePath, branch)
	}
	return err
}

// RemoveWorktree force-removes a worktree.
func (c *Client) RemoveWorktree(ctx context.Context, repoPath, worktreePath string) error {
	_, err := c.run(ctx, repoPath, "worktree", "remove", "--force", worktreePath)
	return err
}

// Diff returns the working tree's diff; staged selects the index diff.
func (c *Client) Diff(ctx context.Context, worktreePath string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--staged")
	}
	return c.run(ctx, worktreePath, args...)
}

// HardReset resets worktreePath to toHash, discarding all changes since.
func (c *Client) HardReset(ctx context.Context, worktreePath, toHash string) error {
	_, err := c.run(ctx, worktreePath, "reset", "--hard", toHash)
	return err
}

// CleanUntracked removes untracked files and directories.
func (c *Client) CleanUntracked(ctx context.Context, worktreePath string) error {
	_, err := c.run(ctx, worktreePath, "clean", "-fd")
	return err
}

// Merge merges worktreePath's branch into targetBranch inside repoPath.
func (c *Client) Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error {
	branch, err := c.CurrentBranch(ctx, worktreePath)
	if err != nil {
		return fmt.Errorf("resolving worktree branch: %w", err)
	}
	if _, err := c.run(ctx, repoPath, "checkout", targetBranch); err != nil {
		return fmt.Errorf("checking out %s: %w", targetBranch, err)
	}
	_, err = c.run(ctx, repoPath, "merge", "--no-ff", branch)
	return err
}

// Push pushes branch to remote.
func (c *Client) Push(ctx context.Context, repoPath, remote, branch string) error {
	_, err := c.run(ctx, repoPath, "push", remote, branch)
	return err
}

// CreateTag creates an annotated tag at HEAD.
func (c *Client) CreateTag(ctx context.Context, repoPath, tag, message string) error {
	_, err := c.run(ctx, repoPath, "tag", "-a", tag, "-m", message)
	return err
}

// CleanWorktrees prunes worktree metadata for directories removed from
// disk without `git worktree remove`.
func (c *Client) CleanWorktrees(ctx context.Context, repoPath string) error {
	_, err := c.run(ctx, repoPath, "worktree", "prune")
	return err
}
