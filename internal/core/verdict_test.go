package core

import (
	"testing"
	"time"
)

func TestComputePassed(t *testing.T) {
	if !ComputePassed(true, 85, 85) {
		t.Fatalf("expected exactly-threshold score to pass")
	}
	if ComputePassed(true, 84.9, 85) {
		t.Fatalf("expected below-threshold score to fail")
	}
	if ComputePassed(false, 99, 85) {
		t.Fatalf("expected a model-failed verdict to fail regardless of score")
	}
}

func TestNewAutoVetoVerdict(t *testing.T) {
	v := NewAutoVetoVerdict(TaskID("t1"), []string{"hardcoded secret"}, "abc123")
	if v.Passed {
		t.Fatalf("expected an auto-veto verdict to never pass")
	}
	if v.QualityScore != 0 {
		t.Fatalf("expected an auto-veto verdict to score 0")
	}
	if v.VerificationHash != "abc123" {
		t.Fatalf("expected the verification hash to be carried through")
	}
	if v.CorrectionDirective == "" {
		t.Fatalf("expected a non-empty correction directive")
	}
	if len(v.Audit.ArchitecturalSins) != 1 {
		t.Fatalf("expected the veto reason recorded as an architectural sin")
	}
}

func TestNewCooldownExpired(t *testing.T) {
	now := time.Now()
	c := NewCooldown("openai", now.Add(-time.Second), SnapshotID("s1"), "429")
	if !c.Expired(now) {
		t.Fatalf("expected a cooldown with a past resume time to be expired")
	}

	future := NewCooldown("openai", now.Add(time.Hour), SnapshotID("s1"), "429")
	if future.Expired(now) {
		t.Fatalf("expected a cooldown with a future resume time to not be expired")
	}
}
