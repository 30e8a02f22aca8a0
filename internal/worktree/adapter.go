// Package worktree abstracts an isolated working copy per task attempt,
// delegating the actual git plumbing to the core.GitOps port. Naming and
// path-containment checks follow a buildWorktreeName/validateTaskID
// shape with a "__"-joined naming scheme, one worktree per task attempt.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/midnight-build/midnight/internal/core"
)

const (
	namePrefix    = "midnight-"
	nameSeparator = "__"
)

// ErrNoIsolation is returned by Create when worktree creation failed and
// the caller should fall back to operating on the project path directly.
var ErrNoIsolation = core.ErrExecution("WORKTREE_DEGRADED", "worktree creation failed, falling back to no-isolation mode")

// Adapter is the worktree capability the agent loop and hand-off depend
// on. One Adapter wraps one GitOps driver.
type Adapter struct {
	git core.GitOps
}

// New wraps a GitOps driver with the worktree adapter contract.
func New(git core.GitOps) *Adapter {
	return &Adapter{git: git}
}

func validateTaskID(taskID string) error {
	trimmed := strings.TrimSpace(taskID)
	if trimmed == "" {
		return core.ErrValidation("WORKTREE_TASK_ID_REQUIRED", "task id required for worktree naming")
	}
	if strings.Contains(trimmed, nameSeparator) || strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, "/\\") {
		return core.ErrValidation("WORKTREE_TASK_ID_INVALID", "task id contains invalid path characters")
	}
	return nil
}

// BranchName returns the deterministic branch name for a task attempt.
func BranchName(taskID core.TaskID) string {
	return namePrefix + string(taskID)
}

// Create creates an isolated worktree for one task attempt at
// <projectPath>/.midnight-worktrees/midnight-<taskID>, branching from the
// project's current HEAD. On any failure the caller should fall back to
// operating on projectPath directly (no isolation).
func (a *Adapter) Create(ctx context.Context, projectPath string, taskID core.TaskID) (string, error) {
	if err := validateTaskID(string(taskID)); err != nil {
		return "", err
	}

	base := filepath.Join(projectPath, ".midnight-worktrees")
	if err := os.MkdirAll(base, 0o750); err != nil {
		return "", fmt.Errorf("creating worktree base directory: %w", err)
	}

	worktreePath := filepath.Join(base, namePrefix+string(taskID))
	if _, err := os.Stat(worktreePath); err == nil {
		return worktreePath, nil // already created this attempt; reuse it
	}

	branch := BranchName(taskID)
	if err := a.git.CreateWorktree(ctx, projectPath, worktreePath, branch); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIsolation, err)
	}
	return worktreePath, nil
}

// GetGitDiff returns the concatenated staged-and-unstaged diff for a
// worktree, or "(no changes)" when there is nothing to show.
func (a *Adapter) GetGitDiff(ctx context.Context, worktreePath string) (string, error) {
	unstaged, err := a.git.Diff(ctx, worktreePath, false)
	if err != nil {
		return "", fmt.Errorf("diffing unstaged changes: %w", err)
	}
	staged, err := a.git.Diff(ctx, worktreePath, true)
	if err != nil {
		return "", fmt.Errorf("diffing staged changes: %w", err)
	}

	combined := strings.TrimSpace(staged + "\n" + unstaged)
	if combined == "" {
		return "(no changes)", nil
	}
	return combined, nil
}

// Revert hard-resets a worktree to a known-good hash and cleans untracked
// files. Revert failures are the caller's to log; they must not abort the
// agent loop — the next iteration may simply fail the same way.
func (a *Adapter) Revert(ctx context.Context, worktreePath, toHash string) error {
	if err := a.git.HardReset(ctx, worktreePath, toHash); err != nil {
		return fmt.Errorf("hard reset to %s: %w", toHash, err)
	}
	if err := a.git.CleanUntracked(ctx, worktreePath); err != nil {
		return fmt.Errorf("cleaning untracked files: %w", err)
	}
	return nil
}

// Merge attempts a driver-managed merge of worktreePath's branch into
// targetBranch; on failure it degrades to an explicit checkout-then-merge
// sequence on the parent repo. An empty targetBranch merges into the
// parent repo's currently checked-out branch.
func (a *Adapter) Merge(ctx context.Context, repoPath, worktreePath, targetBranch string) error {
	if targetBranch == "" {
		current, err := a.git.CurrentBranch(ctx, repoPath)
		if err != nil {
			return fmt.Errorf("resolving parent branch: %w", err)
		}
		targetBranch = current
	}
	if err := a.git.Merge(ctx, repoPath, worktreePath, targetBranch); err == nil {
		return nil
	}
	branch, err := a.git.CurrentBranch(ctx, worktreePath)
	if err != nil {
		return fmt.Errorf("resolving worktree branch for fallback merge: %w", err)
	}
	if err := a.git.Merge(ctx, repoPath, repoPath, branch); err != nil {
		return fmt.Errorf("fallback checkout-then-merge failed: %w", err)
	}
	return nil
}

// Delete best-effort removes a worktree and its branch record. Failures
// are logged by the caller, never surfaced as a hard error.
func (a *Adapter) Delete(ctx context.Context, projectPath, worktreePath string) error {
	return a.git.RemoveWorktree(ctx, projectPath, worktreePath)
}
