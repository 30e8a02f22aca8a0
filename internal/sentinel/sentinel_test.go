package sentinel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midnight-build/midnight/internal/core"
)

func TestCheckVetoConditionsDetectsHardcodedAPIKey(t *testing.T) {
	diff := `+ api_key = "AKIA0123456789ABCDEFGHIJ"`
	violations := CheckVetoConditions(diff)
	require.NotEmpty(t, violations)
}

func TestCheckVetoConditionsDetectsInfiniteLoop(t *testing.T) {
	violations := CheckVetoConditions(`+ while(true) { doWork(); }`)
	assert.NotEmpty(t, violations)
}

func TestCheckVetoConditionsCleanDiffPasses(t *testing.T) {
	violations := CheckVetoConditions(`+ func add(a, b int) int { return a + b }`)
	assert.Empty(t, violations)
}

func TestCheckVetoConditionsDetectsSQLInjection(t *testing.T) {
	violations := CheckVetoConditions("+ db.query(`SELECT * FROM users WHERE id = ${userID}`)")
	assert.NotEmpty(t, violations)
}

type fakeChat struct {
	content string
}

func (f *fakeChat) Chat(ctx context.Context, messages []core.ChatMessage, opts core.ChatOptions) (*core.ChatResponse, error) {
	return &core.ChatResponse{Content: f.content}, nil
}

func newTask() *core.Task {
	return core.NewTask(core.ProjectID("p1"), "add readme", 1, nil)
}

func TestVerifyReturnsAutoVetoWithoutCallingModel(t *testing.T) {
	chat := &fakeChat{content: "should never be reached"}
	s := New(chat, Config{})
	verdict := s.Verify(context.Background(), Context{
		Task: newTask(), Diff: `+ secret = "abcdefghij1234567890"`,
	})
	assert.False(t, verdict.Passed)
	assert.Equal(t, float64(0), verdict.QualityScore)
	assert.NotEmpty(t, verdict.Audit.ArchitecturalSins)
}

func TestVerifyParsesPassingVerdict(t *testing.T) {
	chat := &fakeChat{content: "---\nquality_score: 92\npassed: true\n---\nLooks good."}
	s := New(chat, Config{})
	verdict := s.Verify(context.Background(), Context{Task: newTask(), Diff: "+ clean diff"})
	assert.True(t, verdict.Passed)
	assert.Equal(t, float64(92), verdict.QualityScore)
}

func TestVerifyScoreBelowThresholdFails(t *testing.T) {
	chat := &fakeChat{content: "---\nquality_score: 84\npassed: true\n---\n"}
	s := New(chat, Config{QualityThreshold: 85})
	verdict := s.Verify(context.Background(), Context{Task: newTask(), Diff: "+ diff"})
	assert.False(t, verdict.Passed)
}

func TestVerifyScoreAtThresholdPasses(t *testing.T) {
	chat := &fakeChat{content: "---\nquality_score: 85\npassed: true\n---\n"}
	s := New(chat, Config{QualityThreshold: 85})
	verdict := s.Verify(context.Background(), Context{Task: newTask(), Diff: "+ diff"})
	assert.True(t, verdict.Passed)
}

func TestVerifyParseFailureReturnsFailingVerdict(t *testing.T) {
	chat := &fakeChat{content: "not a parseable response at all"}
	s := New(chat, Config{})
	verdict := s.Verify(context.Background(), Context{Task: newTask(), Diff: "+ diff"})
	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Audit.ArchitecturalSins, "Parse error")
}

func TestVerificationHashIsStableSixteenHexChars(t *testing.T) {
	h1 := VerificationHash("same diff")
	h2 := VerificationHash("same diff")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestGenerateCorrectionDirectiveFallsBackToGeneric(t *testing.T) {
	directive := GenerateCorrectionDirective(core.AuditLog{})
	assert.Contains(t, directive, "standards")
}

func TestStatsTracksVetoesAndAverage(t *testing.T) {
	chat := &fakeChat{content: "---\nquality_score: 90\npassed: true\n---\n"}
	s := New(chat, Config{})
	s.Verify(context.Background(), Context{Task: newTask(), Diff: `+ api_key = "AKIA0123456789ABCDEFGHIJ"`})
	s.Verify(context.Background(), Context{Task: newTask(), Diff: "+ clean"})

	stats := s.Stats()
	assert.Equal(t, 2, stats.Verifications)
	assert.Equal(t, 1, stats.Vetoes)
}
