package core

import "time"

// ThinkingEffort is the reasoning-effort tag requested for a model call.
type ThinkingEffort string

const (
	EffortLow    ThinkingEffort = "low"
	EffortMedium ThinkingEffort = "medium"
	EffortHigh   ThinkingEffort = "high"
	EffortMax    ThinkingEffort = "max"
)

// Traceability summarizes how a diff maps onto a task's requirements.
type Traceability struct {
	MappedRequirements  []string
	MissingRequirements []string
	UnplannedAdditions  []string
}

// AuditLog is the Sentinel's structured accounting for one verdict.
type AuditLog struct {
	Traceability        Traceability
	ArchitecturalSins   []string
	SlopPatternsFound   []string
}

// SentinelVerdict is the Sentinel's adjudication of one Actor diff.
type SentinelVerdict struct {
	ID                    VerdictID
	TaskID                TaskID
	QualityScore          float64
	Passed                bool
	ThinkingEffort        ThinkingEffort
	Audit                 AuditLog
	CorrectionDirective   string // empty iff Passed
	VerificationHash      string // sha256(diff), truncated to 16 hex chars
	CreatedAt             time.Time
}

// NewAutoVetoVerdict builds the automatic-veto verdict the agent loop
// records when check_veto_conditions fires, without spending a model call.
func NewAutoVetoVerdict(taskID TaskID, reasons []string, diffHash string) *SentinelVerdict {
	return &SentinelVerdict{
		ID:                  newVerdictID(),
		TaskID:              taskID,
		QualityScore:        0,
		Passed:              false,
		ThinkingEffort:      EffortMax,
		Audit:               AuditLog{ArchitecturalSins: reasons},
		CorrectionDirective: correctionFromVeto(reasons),
		VerificationHash:    diffHash,
		CreatedAt:           time.Now(),
	}
}

func correctionFromVeto(reasons []string) string {
	directive := "Veto conditions detected — resolve before resubmitting:"
	for _, r := range reasons {
		directive += "\n- " + r
	}
	return directive
}

// ComputePassed applies the score contract: passed only when the model's
// own passed flag agrees and the score clears the configured threshold.
func ComputePassed(modelPassed bool, score, threshold float64) bool {
	return modelPassed && score >= threshold
}
