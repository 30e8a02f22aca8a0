package core

import "testing"

func TestNewIDsAreUniqueAndNonEmpty(t *testing.T) {
	if NewProjectID() == NewProjectID() {
		t.Fatalf("expected distinct project ids")
	}
	if NewTaskID() == "" {
		t.Fatalf("expected a non-empty task id")
	}
	if NewSnapshotID() == NewSnapshotID() {
		t.Fatalf("expected distinct snapshot ids")
	}
	if NewCooldownID() == "" {
		t.Fatalf("expected a non-empty cooldown id")
	}
	if NewVerdictID() == NewVerdictID() {
		t.Fatalf("expected distinct verdict ids")
	}
}
