package core

import "fmt"

// Phase represents a stage in a project's orchestration lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseResearch  Phase = "research"
	PhasePlanning  Phase = "planning"
	PhaseBuilding  Phase = "building"
	PhaseVerifying Phase = "verifying"
	PhaseHandoff   Phase = "handoff"
	PhaseCooldown  Phase = "cooldown"
	PhaseError     Phase = "error"
)

// AllPhases returns every phase in the graph. Order is not significant —
// the legal-transition table (internal/phase.Machine) is what governs
// movement between them — but callers iterate this for validation and
// CLI help text.
func AllPhases() []Phase {
	return []Phase{
		PhaseIdle, PhaseLoading, PhaseResearch, PhasePlanning,
		PhaseBuilding, PhaseVerifying, PhaseHandoff, PhaseCooldown, PhaseError,
	}
}

// ValidPhase checks if a phase string is a recognized phase.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseIdle, PhaseLoading, PhaseResearch, PhasePlanning,
		PhaseBuilding, PhaseVerifying, PhaseHandoff, PhaseCooldown, PhaseError:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Description returns a human-readable description of the phase.
func (p Phase) Description() string {
	switch p {
	case PhaseIdle:
		return "Waiting for a project to dispatch"
	case PhaseLoading:
		return "Loading and validating project DNA"
	case PhaseResearch:
		return "Gathering repo-map and context before planning"
	case PhasePlanning:
		return "Extracting tasks from project DNA"
	case PhaseBuilding:
		return "Running the Actor/Sentinel loop over tasks"
	case PhaseVerifying:
		return "Confirming all tasks passed before completion"
	case PhaseHandoff:
		return "Finalizing this project and rotating to the next"
	case PhaseCooldown:
		return "Waiting out a provider rate limit"
	case PhaseError:
		return "Unrecoverable failure, awaiting operator or restart"
	default:
		return "Unknown phase"
	}
}
