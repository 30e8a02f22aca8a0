package agentloop

import "github.com/midnight-build/midnight/internal/core"

// Confidence computes the weighted-average confidence over a task's
// verdict history: newer verdicts weigh more (weight =
// position + 1), and status buckets at the same 85/70 thresholds used
// elsewhere for running confidence.
func Confidence(verdicts []*core.SentinelVerdict) (score float64, status string) {
	if len(verdicts) == 0 {
		return 0, "error"
	}
	var weightedSum, totalWeight float64
	for i, v := range verdicts {
		w := float64(i + 1)
		weightedSum += w * v.QualityScore
		totalWeight += w
	}
	score = weightedSum / totalWeight
	return score, ConfidenceStatus(score)
}

// ConfidenceStatus buckets a confidence score
func ConfidenceStatus(score float64) string {
	switch {
	case score >= 85:
		return "healthy"
	case score >= 70:
		return "warning"
	default:
		return "error"
	}
}
