package core

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskRunning    TaskStatus = "running"
	TaskVerifying  TaskStatus = "verifying"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskLocked     TaskStatus = "locked"
	TaskReverted   TaskStatus = "reverted"
)

// Agent identifies which of the two cooperating agents owns a step.
type Agent string

const (
	AgentActor    Agent = "actor"
	AgentSentinel Agent = "sentinel"
)

// Task is a unit of work extracted from a project's DNA. A task belongs
// to exactly one project.
type Task struct {
	ID             TaskID
	ProjectID      ProjectID
	Description    string
	Status         TaskStatus
	AssignedAgent  Agent
	Priority       int
	Dependencies   []TaskID
	WorktreePath   string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Result         *TaskResult
	RetryCount     int
}

// NewTask builds a fresh, pending Task for a project.
func NewTask(projectID ProjectID, description string, priority int, deps []TaskID) *Task {
	return &Task{
		ID:            newTaskID(),
		ProjectID:     projectID,
		Description:   description,
		Status:        TaskPending,
		AssignedAgent: AgentActor,
		Priority:      priority,
		Dependencies:  deps,
		CreatedAt:     time.Now(),
	}
}

// IsReady reports whether every prerequisite of t is completed.
func (t *Task) IsReady(completed map[TaskID]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// IsTerminal reports whether t will never transition again without
// manual intervention.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskLocked:
		return true
	default:
		return false
	}
}

// ArtifactKind enumerates the shapes a TaskResult artifact can take.
type ArtifactKind string

const (
	ArtifactFileWrite       ArtifactKind = "file_write"
	ArtifactDiff            ArtifactKind = "diff"
	ArtifactExecutedCommand ArtifactKind = "executed_command"
	ArtifactTestRun         ArtifactKind = "test_run"
)

// Artifact is one side-effect the Actor produced during an attempt.
type Artifact struct {
	Kind    ArtifactKind
	Summary string
}

// ResultError is one entry of a TaskResult's error list.
type ResultError struct {
	Code        string
	Message     string
	Recoverable bool
	Suggestion  string
	File        string
	Line        int
}

// ResultMetrics captures usage for one Actor attempt.
type ResultMetrics struct {
	TokensUsed    int
	LatencyMillis int64
	Iterations    int
	ToolCalls     int
}

// TaskResult is the outcome of one Actor attempt at a task, optionally
// carrying the Sentinel's verdict on that attempt's diff.
type TaskResult struct {
	Success       bool
	OutputSummary string
	Artifacts     []Artifact
	Errors        []ResultError
	Metrics       ResultMetrics
	Verdict       *SentinelVerdict
}

// HasNonRecoverableError reports whether any error in r is non-recoverable,
// the signal the agent loop uses to abort instead of retrying.
func (r *TaskResult) HasNonRecoverableError() bool {
	for _, e := range r.Errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// Validate checks task invariants before insertion into the store.
func (t *Task) Validate() error {
	if t.ProjectID == "" {
		return ErrValidation(CodeMissingDNA, fmt.Sprintf("task %s: project id is required", t.ID))
	}
	if t.Description == "" {
		return ErrValidation("TASK_DESCRIPTION_REQUIRED", fmt.Sprintf("task %s: description is required", t.ID))
	}
	return nil
}
