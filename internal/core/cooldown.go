package core

import "time"

// Cooldown records a provider-scoped wait-until-timestamp entered on a
// rate-limit signal. While any cooldown for a provider has ResumeAt in
// the future, the orchestrator must not dispatch new tasks against it.
type Cooldown struct {
	ID         CooldownID
	Provider   string
	StartedAt  time.Time
	ResumeAt   time.Time
	SnapshotID SnapshotID
	Reason     string
}

// NewCooldown builds a Cooldown entered for provider at startedAt,
// advisory-resumable at resumeAt, pinned to the snapshot taken on entry.
func NewCooldown(provider string, resumeAt time.Time, snapshotID SnapshotID, reason string) *Cooldown {
	return &Cooldown{
		ID:         newCooldownID(),
		Provider:   provider,
		StartedAt:  time.Now(),
		ResumeAt:   resumeAt,
		SnapshotID: snapshotID,
		Reason:     reason,
	}
}

// Expired reports whether the cooldown's resume point has passed as of now.
func (c *Cooldown) Expired(now time.Time) bool {
	return !now.Before(c.ResumeAt)
}
