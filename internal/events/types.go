package events

import (
	"time"

	"github.com/midnight-build/midnight/internal/core"
)

// EventType is the closed set of event kinds Midnight emits. It is a
// tagged union in spirit: every constant here has exactly one payload
// shape below, and BaseEvent.Type is always one of these values.
type EventType string

const (
	TypeProjectStarted   EventType = "project_started"
	TypeProjectCompleted EventType = "project_completed"
	TypeProjectFailed    EventType = "project_failed"
	TypeTaskStarted      EventType = "task_started"
	TypeTaskCompleted    EventType = "task_completed"
	TypeTaskFailed       EventType = "task_failed"
	TypeTaskLocked       EventType = "task_locked"
	TypeSentinelVerdict  EventType = "sentinel_verdict"
	TypeSentinelVeto     EventType = "sentinel_veto"
	TypeWorktreeReverted EventType = "worktree_reverted"
	TypeSnapshotCreated  EventType = "snapshot_created"
	TypeCooldownEntered  EventType = "cooldown_entered"
	TypeCooldownExited   EventType = "cooldown_exited"
	TypeHandoffTriggered EventType = "handoff_triggered"
	TypeConfidenceUpdate EventType = "confidence_updated"
)

// Event is the common interface every concrete event payload satisfies.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	ProjectID() string
}

// BaseEvent carries the fields common to every event.
type BaseEvent struct {
	EventKind EventType
	At        time.Time
	Project   string
}

func (e BaseEvent) Type() EventType      { return e.EventKind }
func (e BaseEvent) Timestamp() time.Time { return e.At }
func (e BaseEvent) ProjectID() string    { return e.Project }

func newBase(kind EventType, projectID core.ProjectID) BaseEvent {
	return BaseEvent{EventKind: kind, At: time.Now(), Project: string(projectID)}
}

// ProjectStarted fires when the orchestrator begins driving a project.
type ProjectStarted struct {
	BaseEvent
	Name string
}

func NewProjectStarted(p *core.Project) ProjectStarted {
	return ProjectStarted{BaseEvent: newBase(TypeProjectStarted, p.ID), Name: p.Name}
}

// ProjectCompleted fires when every task of a project has passed.
type ProjectCompleted struct {
	BaseEvent
}

func NewProjectCompleted(projectID core.ProjectID) ProjectCompleted {
	return ProjectCompleted{BaseEvent: newBase(TypeProjectCompleted, projectID)}
}

// ProjectFailed fires when a project's build phase ends without
// completing every task.
type ProjectFailed struct {
	BaseEvent
	Reason string
}

func NewProjectFailed(projectID core.ProjectID, reason string) ProjectFailed {
	return ProjectFailed{BaseEvent: newBase(TypeProjectFailed, projectID), Reason: reason}
}

// TaskStarted fires when the agent loop begins a task attempt.
type TaskStarted struct {
	BaseEvent
	TaskID core.TaskID
}

func NewTaskStarted(projectID core.ProjectID, taskID core.TaskID) TaskStarted {
	return TaskStarted{BaseEvent: newBase(TypeTaskStarted, projectID), TaskID: taskID}
}

// TaskCompleted fires when a task attempt passes Sentinel verification.
type TaskCompleted struct {
	BaseEvent
	TaskID  core.TaskID
	Verdict core.SentinelVerdict
}

func NewTaskCompleted(projectID core.ProjectID, taskID core.TaskID, verdict core.SentinelVerdict) TaskCompleted {
	return TaskCompleted{BaseEvent: newBase(TypeTaskCompleted, projectID), TaskID: taskID, Verdict: verdict}
}

// TaskFailed fires when an Actor attempt produces a non-recoverable error.
type TaskFailed struct {
	BaseEvent
	TaskID core.TaskID
	Reason string
}

func NewTaskFailed(projectID core.ProjectID, taskID core.TaskID, reason string) TaskFailed {
	return TaskFailed{BaseEvent: newBase(TypeTaskFailed, projectID), TaskID: taskID, Reason: reason}
}

// TaskLocked fires when a task exhausts its retry budget.
type TaskLocked struct {
	BaseEvent
	TaskID core.TaskID
	Reason string
}

func NewTaskLocked(projectID core.ProjectID, taskID core.TaskID, reason string) TaskLocked {
	return TaskLocked{BaseEvent: newBase(TypeTaskLocked, projectID), TaskID: taskID, Reason: reason}
}

// SentinelVerdictEvent carries a freshly computed verdict.
type SentinelVerdictEvent struct {
	BaseEvent
	TaskID  core.TaskID
	Verdict core.SentinelVerdict
}

func NewSentinelVerdictEvent(projectID core.ProjectID, taskID core.TaskID, verdict core.SentinelVerdict) SentinelVerdictEvent {
	return SentinelVerdictEvent{BaseEvent: newBase(TypeSentinelVerdict, projectID), TaskID: taskID, Verdict: verdict}
}

// SentinelVetoEvent fires whenever a verdict is a veto, whether automatic
// (pre-check) or a scored rejection.
type SentinelVetoEvent struct {
	BaseEvent
	TaskID              core.TaskID
	CorrectionDirective string
}

func NewSentinelVetoEvent(projectID core.ProjectID, taskID core.TaskID, directive string) SentinelVetoEvent {
	return SentinelVetoEvent{BaseEvent: newBase(TypeSentinelVeto, projectID), TaskID: taskID, CorrectionDirective: directive}
}

// WorktreeReverted fires once a revert-to-hash completes.
type WorktreeReverted struct {
	BaseEvent
	TaskID core.TaskID
	ToHash string
}

func NewWorktreeReverted(projectID core.ProjectID, taskID core.TaskID, toHash string) WorktreeReverted {
	return WorktreeReverted{BaseEvent: newBase(TypeWorktreeReverted, projectID), TaskID: taskID, ToHash: toHash}
}

// SnapshotCreated fires after a snapshot is durable.
type SnapshotCreated struct {
	BaseEvent
	SnapshotID core.SnapshotID
}

func NewSnapshotCreated(projectID core.ProjectID, snapshotID core.SnapshotID) SnapshotCreated {
	return SnapshotCreated{BaseEvent: newBase(TypeSnapshotCreated, projectID), SnapshotID: snapshotID}
}

// CooldownEntered fires when a provider enters a rate-limit cooldown.
type CooldownEntered struct {
	BaseEvent
	Provider string
	ResumeAt time.Time
}

func NewCooldownEntered(projectID core.ProjectID, provider string, resumeAt time.Time) CooldownEntered {
	return CooldownEntered{BaseEvent: newBase(TypeCooldownEntered, projectID), Provider: provider, ResumeAt: resumeAt}
}

// CooldownExited fires when an expired cooldown is processed.
type CooldownExited struct {
	BaseEvent
	Provider string
}

func NewCooldownExited(projectID core.ProjectID, provider string) CooldownExited {
	return CooldownExited{BaseEvent: newBase(TypeCooldownExited, projectID), Provider: provider}
}

// HandoffTriggered fires when one completed project rotates to the next.
type HandoffTriggered struct {
	BaseEvent
	FromProject string
	ToProject   string
}

func NewHandoffTriggered(fromProject, toProject core.ProjectID) HandoffTriggered {
	return HandoffTriggered{
		BaseEvent:   newBase(TypeHandoffTriggered, fromProject),
		FromProject: string(fromProject),
		ToProject:   string(toProject),
	}
}

// ConfidenceUpdated fires whenever the orchestrator recomputes confidence
// from a new Sentinel verdict.
type ConfidenceUpdated struct {
	BaseEvent
	Score  int
	Status string
}

func NewConfidenceUpdated(projectID core.ProjectID, score int, status string) ConfidenceUpdated {
	return ConfidenceUpdated{BaseEvent: newBase(TypeConfidenceUpdate, projectID), Score: score, Status: status}
}
