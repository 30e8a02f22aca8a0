package core

import "github.com/google/uuid"

// ProjectID, TaskID, SnapshotID, CooldownID, and VerdictID are opaque
// identifiers for the durable entities. They are all generated the same
// way (google/uuid), kept as distinct types so a caller cannot pass a
// TaskID where a ProjectID is expected without an explicit conversion.
type (
	ProjectID  string
	TaskID     string
	SnapshotID string
	CooldownID string
	VerdictID  string
)

func newProjectID() ProjectID   { return ProjectID(uuid.NewString()) }
func newTaskID() TaskID         { return TaskID(uuid.NewString()) }
func newSnapshotID() SnapshotID { return SnapshotID(uuid.NewString()) }
func newCooldownID() CooldownID { return CooldownID(uuid.NewString()) }
func newVerdictID() VerdictID   { return VerdictID(uuid.NewString()) }

// NewProjectID, NewTaskID, NewSnapshotID, NewCooldownID and NewVerdictID
// are exported so store implementations can assign ids before the first
// write (e.g. to reference a project's id from its DNA row in the same
// transaction).
func NewProjectID() ProjectID   { return newProjectID() }
func NewTaskID() TaskID         { return newTaskID() }
func NewSnapshotID() SnapshotID { return newSnapshotID() }
func NewCooldownID() CooldownID { return newCooldownID() }
func NewVerdictID() VerdictID   { return newVerdictID() }
