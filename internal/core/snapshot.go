package core

import "time"

// AgentState is the in-memory state captured at snapshot time: enough to
// resume a project's build phase without replaying every prior attempt.
type AgentState struct {
	ActorMemoryExcerpt  string
	SentinelVetoCount   int
	SentinelAvgQuality  float64
	CurrentTaskID       TaskID
	TaskProgressPercent float64
	IterationCount      int
}

// StateSnapshot is a durable, immutable capture of a project's progress.
// Once persisted, a snapshot is never mutated; save_snapshot always
// creates a new row.
type StateSnapshot struct {
	ID             SnapshotID
	ProjectID      ProjectID
	GitHash        string
	AgentState     AgentState
	ReasoningTrace []string
	CreatedAt      time.Time
}

// NewSnapshot builds a new StateSnapshot ready for persistence.
func NewSnapshot(projectID ProjectID, gitHash string, state AgentState, trace []string) *StateSnapshot {
	return &StateSnapshot{
		ID:             newSnapshotID(),
		ProjectID:      projectID,
		GitHash:        gitHash,
		AgentState:     state,
		ReasoningTrace: trace,
		CreatedAt:      time.Now(),
	}
}

// MaxSnapshotsPerProject is the retention bound enforced by save_snapshot:
// exactly this many most-recent snapshots survive per project.
const MaxSnapshotsPerProject = 20
