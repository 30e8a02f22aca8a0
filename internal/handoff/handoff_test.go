package handoff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
)

type fakeStore struct {
	statuses  map[core.ProjectID]core.ProjectStatus
	priority  map[core.ProjectID]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[core.ProjectID]core.ProjectStatus), priority: make(map[core.ProjectID]int)}
}
func (f *fakeStore) UpdateProjectStatus(ctx context.Context, id core.ProjectID, status core.ProjectStatus) error {
	f.statuses[id] = status
	return nil
}
func (f *fakeStore) ReorderProject(ctx context.Context, id core.ProjectID, newPriority int) error {
	f.priority[id] = newPriority
	return nil
}

type fakeSnapshotter struct{ calls []core.ProjectID }

func (f *fakeSnapshotter) SaveSnapshot(ctx context.Context, projectID core.ProjectID) (core.SnapshotID, error) {
	f.calls = append(f.calls, projectID)
	return core.NewSnapshotID(), nil
}

type fakeGit struct {
	tags     []string
	pushed   []string
	cleaned  bool
	tagErr   error
	pushErr  error
}

func (f *fakeGit) CreateTag(ctx context.Context, repoPath, tag, message string) error {
	f.tags = append(f.tags, tag)
	return f.tagErr
}
func (f *fakeGit) Push(ctx context.Context, repoPath, remote, branch string) error {
	f.pushed = append(f.pushed, remote+"/"+branch)
	return f.pushErr
}
func (f *fakeGit) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return "main", nil
}
func (f *fakeGit) CleanWorktrees(ctx context.Context, repoPath string) error {
	f.cleaned = true
	return nil
}

type fakeDeployer struct{ called bool }

func (f *fakeDeployer) Trigger(ctx context.Context, projectPath, branch string) (bool, error) {
	f.called = true
	return true, nil
}

func TestRunMarksCompletedAndRotatesNext(t *testing.T) {
	st := newFakeStore()
	snap := &fakeSnapshotter{}
	git := &fakeGit{}
	h := New(st, snap, git, nil, events.New(16), nil)

	completed := ProjectRef{ID: "p1", Name: "proj-one", Path: "/repo1"}
	next := &ProjectRef{ID: "p2", Name: "proj-two", Path: "/repo2"}

	err := h.Run(context.Background(), Config{}, completed, next)
	require.NoError(t, err)

	assert.Equal(t, core.ProjectCompleted, st.statuses["p1"])
	assert.Equal(t, core.ProjectQueued, st.statuses["p2"])
	assert.Equal(t, VeryLargePriority, st.priority["p2"])
	assert.Len(t, snap.calls, 1)
	assert.Len(t, git.tags, 1)
}

func TestRunEmitsHandoffTriggered(t *testing.T) {
	st := newFakeStore()
	bus := events.New(16)
	sub := bus.Subscribe(events.TypeHandoffTriggered)
	h := New(st, &fakeSnapshotter{}, &fakeGit{}, nil, bus, nil)

	completed := ProjectRef{ID: "p1", Path: "/repo1"}
	next := &ProjectRef{ID: "p2", Path: "/repo2"}
	require.NoError(t, h.Run(context.Background(), Config{}, completed, next))

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypeHandoffTriggered, ev.Type())
	default:
		t.Fatal("expected handoff_triggered event")
	}
}

func TestRunSkipsRotationWhenNoNextProject(t *testing.T) {
	st := newFakeStore()
	bus := events.New(16)
	sub := bus.Subscribe(events.TypeHandoffTriggered)
	h := New(st, &fakeSnapshotter{}, &fakeGit{}, nil, bus, nil)

	err := h.Run(context.Background(), Config{}, ProjectRef{ID: "p1", Path: "/repo1"}, nil)
	require.NoError(t, err)

	select {
	case <-sub:
		t.Fatal("did not expect handoff_triggered without a next project")
	default:
	}
}

func TestRunContinuesWhenTagCreationFails(t *testing.T) {
	st := newFakeStore()
	git := &fakeGit{tagErr: assert.AnError}
	h := New(st, &fakeSnapshotter{}, git, nil, events.New(16), nil)

	err := h.Run(context.Background(), Config{}, ProjectRef{ID: "p1", Path: "/repo1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.ProjectCompleted, st.statuses["p1"])
}

func TestRunPushesToOriginWhenConfigured(t *testing.T) {
	st := newFakeStore()
	git := &fakeGit{}
	h := New(st, &fakeSnapshotter{}, git, nil, events.New(16), nil)

	err := h.Run(context.Background(), Config{PushToRemote: true}, ProjectRef{ID: "p1", Path: "/repo1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"origin/main"}, git.pushed)
}

func TestRunInvokesDeploymentTriggerWhenConfigured(t *testing.T) {
	st := newFakeStore()
	deployer := &fakeDeployer{}
	h := New(st, &fakeSnapshotter{}, &fakeGit{}, deployer, events.New(16), nil)

	err := h.Run(context.Background(), Config{TriggerDeployment: true}, ProjectRef{ID: "p1", Path: "/repo1"}, nil)
	require.NoError(t, err)
	assert.True(t, deployer.called)
}

func TestRunCleansUpWorktreesWhenConfigured(t *testing.T) {
	st := newFakeStore()
	git := &fakeGit{}
	h := New(st, &fakeSnapshotter{}, git, nil, events.New(16), nil)

	err := h.Run(context.Background(), Config{CleanupWorktrees: true}, ProjectRef{ID: "p1", Path: "/repo1"}, nil)
	require.NoError(t, err)
	assert.True(t, git.cleaned)
}

func TestRunPostsWebhookPayload(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newFakeStore()
	h := New(st, &fakeSnapshotter{}, &fakeGit{}, nil, events.New(16), nil)

	completed := ProjectRef{ID: "p1", Name: "one", Path: "/repo1"}
	next := &ProjectRef{ID: "p2", Name: "two", Path: "/repo2"}
	err := h.Run(context.Background(), Config{NotifyWebhookURL: srv.URL}, completed, next)
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, "project_handoff", p.Type)
		assert.Equal(t, completed, p.Completed)
		require.NotNil(t, p.Next)
		assert.Equal(t, *next, *p.Next)
	default:
		t.Fatal("expected webhook call")
	}
}
