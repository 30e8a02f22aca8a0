package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "midnight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddProjectAndNextProjectOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	low, err := s.AddProject(ctx, "/tmp/a", 1)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	high, err := s.AddProject(ctx, "/tmp/b", 10)
	require.NoError(t, err)

	next, err := s.NextProject(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, high.ID, next.ID)

	// Removing the high-priority project should expose the low one next.
	ok, err := s.RemoveProject(ctx, high.ID)
	require.NoError(t, err)
	require.True(t, ok)

	next, err = s.NextProject(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, low.ID, next.ID)
}

func TestNextProjectTieBreaksByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.AddProject(ctx, "/tmp/a", 5)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.AddProject(ctx, "/tmp/b", 5)
	require.NoError(t, err)

	next, err := s.NextProject(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, next.ID)
}

func TestUpdateProjectStatusStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)
	require.Nil(t, p.StartedAt)

	require.NoError(t, s.UpdateProjectStatus(ctx, p.ID, core.ProjectBuilding))
	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, core.ProjectBuilding, got.Status)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)

	require.NoError(t, s.UpdateProjectStatus(ctx, p.ID, core.ProjectCompleted))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
}

func TestTaskCascadeDeleteOnProjectRemoval(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)
	task, err := s.AddTask(ctx, p.ID, "write README", 0, nil)
	require.NoError(t, err)

	_, err = s.RemoveProject(ctx, p.ID)
	require.NoError(t, err)

	_, err = s.GetTask(ctx, task.ID)
	require.Error(t, err)
	require.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestSnapshotRetentionKeepsOnlyTwenty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)

	for i := 0; i < core.MaxSnapshotsPerProject+5; i++ {
		snap := core.NewSnapshot(p.ID, "deadbeef", core.AgentState{}, nil)
		require.NoError(t, s.SaveSnapshot(ctx, snap))
	}

	list, err := s.ListSnapshots(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, core.MaxSnapshotsPerProject)
	// Descending by created_at.
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}

func TestCooldownLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)
	snap := core.NewSnapshot(p.ID, "deadbeef", core.AgentState{}, nil)
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	resumeAt := time.Now().Add(time.Minute)
	cd := core.NewCooldown("openai", resumeAt, snap.ID, "429")
	require.NoError(t, s.AddCooldown(ctx, cd))

	active, err := s.CheckCooldowns(ctx, time.Now().UnixMilli())
	require.NoError(t, err)
	require.Len(t, active, 1)

	expired, err := s.ProcessExpiredCooldowns(ctx, resumeAt.Add(time.Millisecond).UnixMilli())
	require.NoError(t, err)
	require.Len(t, expired, 1)

	active, err = s.CheckCooldowns(ctx, resumeAt.Add(time.Millisecond).UnixMilli())
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestDNARoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)

	dna := &core.ProjectDNA{
		IdeaText: "add README",
		TechStack: map[string]core.DependencyConstraint{
			"go": {Constraint: "1.24"},
		},
		DefinitionOfDone: "README exists",
	}
	require.NoError(t, s.StoreDNA(ctx, p.ID, dna))

	got, err := s.GetDNA(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, dna.IdeaText, got.IdeaText)
	require.Equal(t, dna.DefinitionOfDone, got.DefinitionOfDone)
	require.Equal(t, dna.TechStack["go"].Constraint, got.TechStack["go"].Constraint)
}

func TestStatsReflectsProjectCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.AddProject(ctx, "/tmp/a", 0)
	require.NoError(t, err)
	_, err = s.AddProject(ctx, "/tmp/b", 0)
	require.NoError(t, err)

	require.NoError(t, s.UpdateProjectStatus(ctx, a.ID, core.ProjectCompleted))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Queued)
	require.Equal(t, 1, stats.Completed)
}
