// Package handoff finalizes a completed project and rotates the next
// queued one to the front through an ordered sequence of finalization
// steps. Tag/push steps wrap os/exec with stderr-aware error reporting
// through the core.GitOps port; every step past the store update is
// best-effort, matching that
// package's "log and continue" treatment of secondary git failures.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/midnight-build/midnight/internal/core"
	"github.com/midnight-build/midnight/internal/events"
)

// VeryLargePriority is the priority bump applied to the next project so
// the following dispatch always picks it over anything already queued.
const VeryLargePriority = 1 << 30

// Store is the subset of store.Store the hand-off phase depends on.
type Store interface {
	UpdateProjectStatus(ctx context.Context, id core.ProjectID, status core.ProjectStatus) error
	ReorderProject(ctx context.Context, id core.ProjectID, newPriority int) error
}

// Snapshotter saves a final state snapshot for the completed project.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, projectID core.ProjectID) (core.SnapshotID, error)
}

// GitOps is the subset of core.GitOps the hand-off phase consumes.
type GitOps interface {
	CreateTag(ctx context.Context, repoPath, tag, message string) error
	Push(ctx context.Context, repoPath, remote, branch string) error
	CurrentBranch(ctx context.Context, repoPath string) (string, error)
	CleanWorktrees(ctx context.Context, repoPath string) error
}

// Logger records best-effort failures without aborting hand-off.
type Logger interface {
	Warn(msg string, args ...any)
}

// Config tunes the hand-off phase's optional finalization steps.
type Config struct {
	PushToRemote      bool
	TriggerDeployment bool
	CleanupWorktrees  bool
	NotifyWebhookURL  string
}

// Handoff drives the finalization phase.
type Handoff struct {
	store      Store
	snapshots  Snapshotter
	git        GitOps
	deployer   core.DeploymentTrigger // optional; nil disables step 4
	bus        *events.Bus
	log        Logger
	httpClient *http.Client
}

// New builds a Handoff over its collaborators. deployer and log may be
// nil.
func New(store Store, snapshots Snapshotter, git GitOps, deployer core.DeploymentTrigger, bus *events.Bus, log Logger) *Handoff {
	return &Handoff{store: store, snapshots: snapshots, git: git, deployer: deployer, bus: bus, log: log, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// ProjectRef is the minimal project identity carried into the webhook
// payload and event.
type ProjectRef struct {
	ID   core.ProjectID
	Name string
	Path string
}

// Run executes the eight hand-off steps for completed project C and the
// next queued project N (N may be the zero value if no project is
// queued, in which case steps 7-8 are skipped).
func (h *Handoff) Run(ctx context.Context, cfg Config, completed ProjectRef, next *ProjectRef) error {
	h.tagCompletion(ctx, completed)

	if err := h.store.UpdateProjectStatus(ctx, completed.ID, core.ProjectCompleted); err != nil {
		return fmt.Errorf("marking project completed: %w", err)
	}
	if _, err := h.snapshots.SaveSnapshot(ctx, completed.ID); err != nil {
		h.warn("final snapshot failed for %s: %v", completed.ID, err)
	}

	if cfg.PushToRemote {
		h.pushToRemote(ctx, completed)
	}

	if cfg.TriggerDeployment && h.deployer != nil {
		if _, err := h.deployer.Trigger(ctx, completed.Path, ""); err != nil {
			h.warn("deployment trigger failed for %s: %v", completed.ID, err)
		}
	}

	if cfg.CleanupWorktrees {
		if err := h.git.CleanWorktrees(ctx, completed.Path); err != nil {
			h.warn("worktree cleanup failed for %s: %v", completed.ID, err)
		}
	}

	if cfg.NotifyWebhookURL != "" {
		h.notifyWebhook(ctx, cfg.NotifyWebhookURL, completed, next)
	}

	if next == nil {
		return nil
	}

	if err := h.store.UpdateProjectStatus(ctx, next.ID, core.ProjectQueued); err != nil {
		return fmt.Errorf("queuing next project: %w", err)
	}
	if err := h.store.ReorderProject(ctx, next.ID, VeryLargePriority); err != nil {
		return fmt.Errorf("bumping next project priority: %w", err)
	}

	h.publish(events.NewHandoffTriggered(completed.ID, next.ID))
	return nil
}

func (h *Handoff) tagCompletion(ctx context.Context, completed ProjectRef) {
	tag := fmt.Sprintf("midnight-complete-%s", time.Now().UTC().Format("2006-01-02"))
	if err := h.git.CreateTag(ctx, completed.Path, tag, "Midnight: project completed"); err != nil {
		h.warn("completion tag failed for %s: %v", completed.ID, err)
	}
}

func (h *Handoff) pushToRemote(ctx context.Context, completed ProjectRef) {
	branch, err := h.git.CurrentBranch(ctx, completed.Path)
	if err != nil {
		h.warn("resolving current branch failed for %s: %v", completed.ID, err)
		return
	}
	if err := h.git.Push(ctx, completed.Path, "origin", branch); err != nil {
		h.warn("push to origin failed for %s: %v", completed.ID, err)
	}
}

// webhookPayload is the best-effort POST body for step 6.
type webhookPayload struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Completed ProjectRef  `json:"completed"`
	Next      *ProjectRef `json:"next,omitempty"`
}

func (h *Handoff) notifyWebhook(ctx context.Context, url string, completed ProjectRef, next *ProjectRef) {
	payload := webhookPayload{Type: "project_handoff", Timestamp: time.Now().UTC(), Completed: completed, Next: next}
	body, err := json.Marshal(payload)
	if err != nil {
		h.warn("encoding webhook payload failed: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		h.warn("building webhook request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.warn("webhook delivery failed: %v", err)
		return
	}
	_ = resp.Body.Close()
}

func (h *Handoff) warn(format string, args ...any) {
	if h.log != nil {
		h.log.Warn(fmt.Sprintf(format, args...))
	}
}

func (h *Handoff) publish(ev events.Event) {
	if h.bus != nil {
		h.bus.Publish(ev)
	}
}
