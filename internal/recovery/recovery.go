// Package recovery brings persistent state to a consistent, re-runnable
// form on boot: a boot-time scan over every
// interrupted project here.
package recovery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/store"
)

// Store is the subset of store.Store the recovery system depends on.
type Store interface {
	ListProjects(ctx context.Context) ([]*core.Project, error)
	GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error)
	UpdateProjectStatus(ctx context.Context, id core.ProjectID, status core.ProjectStatus) error
	ProjectTasks(ctx context.Context, projectID core.ProjectID) ([]*core.Task, error)
	UpdateTask(ctx context.Context, id core.TaskID, u store.TaskUpdate) error
	ListSnapshots(ctx context.Context, projectID core.ProjectID) ([]*core.StateSnapshot, error)
	ProcessExpiredCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error)
}

// GitOps is the subset of core.GitOps recovery needs for the working-tree
// reset step.
type GitOps interface {
	HardReset(ctx context.Context, worktreePath, toHash string) error
	CleanUntracked(ctx context.Context, worktreePath string) error
}

// recoveryPhases are the project statuses recovery considers in-flight.
var recoveryPhases = map[core.ProjectStatus]bool{
	core.ProjectLoading:   true,
	core.ProjectPlanning:  true,
	core.ProjectBuilding:  true,
	core.ProjectVerifying: true,
}

// Options configures one Recover call.
type Options struct {
	ForceSnapshot    core.SnapshotID
	SkipGitReset     bool
	ClearFailedTasks bool
}

// Result is the per-project outcome of recovery.
type Result struct {
	ProjectID     core.ProjectID
	Snapshot      *core.SnapshotID
	ResetToQueued bool
	RestoredTasks int
	NewStatus     core.ProjectStatus
	Message       string
}

// System is the boot-time recovery system.
type System struct {
	store Store
	git   GitOps
}

// New builds a recovery System.
func New(st Store, git GitOps) *System {
	return &System{store: st, git: git}
}

// CheckNeedsRecovery reports whether any project is in an in-flight
// phase (loading, planning, building, verifying).
func (s *System) CheckNeedsRecovery(ctx context.Context) (bool, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range projects {
		if recoveryPhases[p.Status] {
			return true, nil
		}
	}
	return false, nil
}

// Recover scans every in-flight project and recovers each one. Recovery
// fan-out across projects is bounded by an errgroup.
func (s *System) Recover(ctx context.Context, opts Options) ([]*Result, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	var inFlight []*core.Project
	for _, p := range projects {
		if recoveryPhases[p.Status] {
			inFlight = append(inFlight, p)
		}
	}

	results := make([]*Result, len(inFlight))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range inFlight {
		i, p := i, p
		g.Go(func() error {
			r, err := s.RecoverProject(gctx, p, opts)
			if err != nil {
				return fmt.Errorf("recovering project %s: %w", p.ID, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// RecoverProject implements the five-step recovery algorithm: select a
// snapshot, reset the working tree, restore task states, set project
// status, and log the outcome.
func (s *System) RecoverProject(ctx context.Context, project *core.Project, opts Options) (*Result, error) {
	snap, err := s.selectSnapshot(ctx, project.ID, opts)
	if err != nil {
		return nil, err
	}

	if snap == nil {
		if err := s.store.UpdateProjectStatus(ctx, project.ID, core.ProjectQueued); err != nil {
			return nil, err
		}
		return &Result{ProjectID: project.ID, ResetToQueued: true, NewStatus: core.ProjectQueued, Message: "no snapshot, reset"}, nil
	}

	if !opts.SkipGitReset && s.git != nil {
		if err := s.git.HardReset(ctx, project.LocalPath, snap.GitHash); err != nil {
			return nil, fmt.Errorf("hard reset to snapshot hash: %w", err)
		}
		if err := s.git.CleanUntracked(ctx, project.LocalPath); err != nil {
			return nil, fmt.Errorf("cleaning untracked files: %w", err)
		}
	}

	restored, err := s.restoreTaskStates(ctx, project.ID, snap, opts)
	if err != nil {
		return nil, err
	}

	newStatus := postRecoveryStatus(snap)
	if err := s.store.UpdateProjectStatus(ctx, project.ID, newStatus); err != nil {
		return nil, err
	}

	return &Result{
		ProjectID:     project.ID,
		Snapshot:      &snap.ID,
		RestoredTasks: restored,
		NewStatus:     newStatus,
		Message:       fmt.Sprintf("recovered from snapshot %s", snap.ID),
	}, nil
}

// selectSnapshot walks snapshots newest-first and returns the first
// whose Sentinel statistics show zero vetoes or an average quality
// score >= 85; else the newest; else nil.
func (s *System) selectSnapshot(ctx context.Context, projectID core.ProjectID, opts Options) (*core.StateSnapshot, error) {
	if opts.ForceSnapshot != "" {
		snaps, err := s.store.ListSnapshots(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			if snap.ID == opts.ForceSnapshot {
				return snap, nil
			}
		}
		return nil, core.ErrNotFound("snapshot", string(opts.ForceSnapshot))
	}

	snaps, err := s.store.ListSnapshots(ctx, projectID) // newest first, per store contract
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	for _, snap := range snaps {
		if snap.AgentState.SentinelVetoCount == 0 || snap.AgentState.SentinelAvgQuality >= 85 {
			return snap, nil
		}
	}
	return snaps[0], nil
}

// restoreTaskStates resets running/verifying tasks to assigned, clears
// failed tasks back to pending when requested, and frees locks that
// predate the recovery snapshot.
func (s *System) restoreTaskStates(ctx context.Context, projectID core.ProjectID, snap *core.StateSnapshot, opts Options) (int, error) {
	tasks, err := s.store.ProjectTasks(ctx, projectID)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, t := range tasks {
		switch {
		case t.Status == core.TaskRunning || t.Status == core.TaskVerifying:
			assigned := core.TaskAssigned
			clearStart := false
			if err := s.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &assigned, StartedAt: &clearStart}); err != nil {
				return restored, err
			}
			restored++
		case opts.ClearFailedTasks && t.Status == core.TaskFailed:
			pending := core.TaskPending
			zero := 0
			if err := s.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &pending, RetryCount: &zero, ClearResult: true}); err != nil {
				return restored, err
			}
			restored++
		case t.Status == core.TaskLocked && t.CompletedAt != nil && t.CompletedAt.After(snap.CreatedAt):
			pending := core.TaskPending
			if err := s.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &pending}); err != nil {
				return restored, err
			}
			restored++
		}
	}
	return restored, nil
}

// postRecoveryStatus infers project status from the snapshot's agent
// state: in-progress task -> building, a prior verdict -> verifying,
// else planning.
func postRecoveryStatus(snap *core.StateSnapshot) core.ProjectStatus {
	if snap.AgentState.CurrentTaskID != "" && snap.AgentState.TaskProgressPercent > 0 {
		return core.ProjectBuilding
	}
	if snap.AgentState.SentinelAvgQuality > 0 || snap.AgentState.SentinelVetoCount > 0 {
		return core.ProjectVerifying
	}
	return core.ProjectPlanning
}

// CleanupOrphans clears worktree paths on non-running
// tasks (the isolated directory is gone or stale after a restart) and
// process any cooldowns that have since expired.
func (s *System) CleanupOrphans(ctx context.Context, projectID core.ProjectID) error {
	tasks, err := s.store.ProjectTasks(ctx, projectID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status == core.TaskRunning || t.WorktreePath == "" {
			continue
		}
		empty := ""
		if err := s.store.UpdateTask(ctx, t.ID, store.TaskUpdate{WorktreePath: &empty}); err != nil {
			return err
		}
	}
	_, err = s.store.ProcessExpiredCooldowns(ctx, time.Now().UnixMilli())
	return err
}
