package stateengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
	"github.com/midnight-build/midnight/internal/store"
)

type fakeStore struct {
	snapshots map[core.ProjectID][]*core.StateSnapshot
	cooldowns []*core.Cooldown
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[core.ProjectID][]*core.StateSnapshot)}
}

func (f *fakeStore) GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	return &core.Project{ID: id}, nil
}
func (f *fakeStore) SaveSnapshot(ctx context.Context, snap *core.StateSnapshot) error {
	f.snapshots[snap.ProjectID] = append(f.snapshots[snap.ProjectID], snap)
	if len(f.snapshots[snap.ProjectID]) > core.MaxSnapshotsPerProject {
		f.snapshots[snap.ProjectID] = f.snapshots[snap.ProjectID][1:]
	}
	return nil
}
func (f *fakeStore) LoadLatestSnapshot(ctx context.Context, projectID core.ProjectID) (*core.StateSnapshot, error) {
	list := f.snapshots[projectID]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}
func (f *fakeStore) LoadSnapshot(ctx context.Context, id core.SnapshotID) (*core.StateSnapshot, error) {
	for _, list := range f.snapshots {
		for _, s := range list {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return nil, core.ErrNotFound("snapshot", string(id))
}
func (f *fakeStore) ListSnapshots(ctx context.Context, projectID core.ProjectID) ([]*core.StateSnapshot, error) {
	return f.snapshots[projectID], nil
}
func (f *fakeStore) AddCooldown(ctx context.Context, c *core.Cooldown) error {
	f.cooldowns = append(f.cooldowns, c)
	return nil
}
func (f *fakeStore) CheckCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error) {
	var out []*core.Cooldown
	for _, c := range f.cooldowns {
		if c.ResumeAt.UnixMilli() > now {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeStore) ProcessExpiredCooldowns(ctx context.Context, now int64) ([]*core.Cooldown, error) {
	var expired, remaining []*core.Cooldown
	for _, c := range f.cooldowns {
		if c.ResumeAt.UnixMilli() <= now {
			expired = append(expired, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	f.cooldowns = remaining
	return expired, nil
}
func (f *fakeStore) AppendLog(ctx context.Context, level store.LogLevel, source, message string, fields map[string]interface{}, projectID, taskID string) error {
	return nil
}
func (f *fakeStore) RecordMetric(ctx context.Context, name string, value float64, projectID string, tags map[string]string) error {
	return nil
}

type fakeCapturer struct{}

func (fakeCapturer) CaptureState(projectID core.ProjectID) (string, core.AgentState, []string) {
	return "githash", core.AgentState{CurrentTaskID: core.TaskID("t1")}, []string{"thinking..."}
}

func TestSaveSnapshotEmitsEvent(t *testing.T) {
	fs := newFakeStore()
	bus := events.New(16)
	sub := bus.Subscribe(events.TypeSnapshotCreated)
	e := New(fs, fakeCapturer{}, bus)

	id, err := e.SaveSnapshot(context.Background(), "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypeSnapshotCreated, ev.Type())
	default:
		t.Fatal("expected snapshot_created event")
	}
}

func TestEnterCooldownSnapshotsFirstAndEmits(t *testing.T) {
	fs := newFakeStore()
	bus := events.New(16)
	sub := bus.Subscribe(events.TypeCooldownEntered)
	e := New(fs, fakeCapturer{}, bus)

	c, err := e.EnterCooldown(context.Background(), "openai", time.Now().Add(time.Minute), "429", "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.SnapshotID)
	assert.Len(t, fs.snapshots["p1"], 1)

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypeCooldownEntered, ev.Type())
	default:
		t.Fatal("expected cooldown_entered event")
	}
}

func TestCheckCooldownsThenProcessExpiredEmitsExit(t *testing.T) {
	fs := newFakeStore()
	bus := events.New(16)
	e := New(fs, fakeCapturer{}, bus)

	_, err := e.EnterCooldown(context.Background(), "openai", time.Now().Add(-time.Second), "429", "p1")
	require.NoError(t, err)

	active, err := e.CheckCooldowns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active) // already expired relative to "now"

	sub := bus.Subscribe(events.TypeCooldownExited)
	expired, err := e.ProcessExpiredCooldowns(context.Background())
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypeCooldownExited, ev.Type())
	default:
		t.Fatal("expected cooldown_exited event")
	}
}

func TestStartStopAutoSnapshotCancelsPreviousTimer(t *testing.T) {
	fs := newFakeStore()
	e := New(fs, fakeCapturer{}, events.New(16))

	e.StartAutoSnapshot(context.Background(), "p1", time.Hour)
	require.Len(t, fs.snapshots["p1"], 1) // immediate snapshot taken

	e.StartAutoSnapshot(context.Background(), "p2", time.Hour)
	require.Len(t, fs.snapshots["p2"], 1)

	e.StopAutoSnapshot()
}
