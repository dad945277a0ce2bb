// Package scoring computes the Research Impact Score (RIS) of a publication
// and the reward-token quantity a funding amount earns at that score.
//
// Every function here is pure and safe for concurrent use.
package scoring

import "math"

const (
	NoveltyWeight       = 0.4
	CitationsWeight     = 0.3
	PeerReviewsWeight   = 0.2
	JournalImpactWeight = 0.1

	// TokenizationThreshold is the minimum RIS that earns reward tokens.
	TokenizationThreshold = 6.0

	// TokensPerUnit is the reward per funding unit at exactly the threshold.
	TokensPerUnit = 10.0

	scaleMax = 10.0
)

type metricRange struct {
	min, max float64
}

// Assumed ranges of the raw metrics. Anything beyond max normalizes to 10.
var (
	noveltyRange       = metricRange{0, 100}
	citationsRange     = metricRange{0, 500}
	peerReviewsRange   = metricRange{0, 20}
	journalImpactRange = metricRange{0, 50}
)

// ComputeImpactScore normalizes each metric onto [0,10], weights the four
// components and sums them. Score is rounded once after summing while each
// breakdown component is rounded on its own.
func ComputeImpactScore(m PublicationMetrics) ImpactScore {
	novelty := NoveltyWeight * Normalize(m.NoveltyScore, noveltyRange.min, noveltyRange.max)
	citations := CitationsWeight * Normalize(m.CitationCount, citationsRange.min, citationsRange.max)
	peerReviews := PeerReviewsWeight * Normalize(m.PeerReviewCount, peerReviewsRange.min, peerReviewsRange.max)
	journalImpact := JournalImpactWeight * Normalize(m.JournalImpactFactor, journalImpactRange.min, journalImpactRange.max)

	score := round2(novelty + citations + peerReviews + journalImpact)

	return ImpactScore{
		Score:    score,
		Eligible: IsEligible(score),
		Breakdown: ScoreBreakdown{
			Novelty:       round2(novelty),
			Citations:     round2(citations),
			PeerReviews:   round2(peerReviews),
			JournalImpact: round2(journalImpact),
		},
	}
}

// IsEligible reports whether a score reaches the tokenization threshold.
func IsEligible(score float64) bool {
	return score >= TokenizationThreshold
}

// ComputeTokenAmount returns the reward tokens for fundingAmount at score.
// Below the threshold the reward is zero whatever the amount. Above it the
// reward is linear in both arguments with no cap. fundingAmount is not
// validated.
func ComputeTokenAmount(score, fundingAmount float64) float64 {
	if !IsEligible(score) {
		return 0
	}
	multiplier := TokensPerUnit * (score / TokenizationThreshold)
	return round2(fundingAmount * multiplier)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
