package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/midnight-build/midnight/internal/core"
)

func TestConfidenceWeightsNewerVerdictsMore(t *testing.T) {
	verdicts := []*core.SentinelVerdict{
		{QualityScore: 40},
		{QualityScore: 100},
	}
	score, status := Confidence(verdicts)
	// weights 1,2 -> (40*1 + 100*2) / 3 = 80
	assert.InDelta(t, 80.0, score, 0.01)
	assert.Equal(t, "warning", status)
}

func TestConfidenceEmptyIsError(t *testing.T) {
	score, status := Confidence(nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, "error", status)
}

func TestConfidenceStatusBoundaries(t *testing.T) {
	assert.Equal(t, "healthy", ConfidenceStatus(85))
	assert.Equal(t, "warning", ConfidenceStatus(84.99))
	assert.Equal(t, "warning", ConfidenceStatus(70))
	assert.Equal(t, "error", ConfidenceStatus(69.99))
}
