package scoring

// PublicationMetrics are the raw inputs the scorer reads from a publication.
type PublicationMetrics struct {
	NoveltyScore        float64 `json:"novelty_score" yaml:"novelty_score"`
	CitationCount       float64 `json:"citation_count" yaml:"citation_count"`
	PeerReviewCount     float64 `json:"peer_review_count" yaml:"peer_review_count"`
	JournalImpactFactor float64 `json:"journal_impact_factor" yaml:"journal_impact_factor"`
}

// ScoreBreakdown holds the weighted component values, each rounded to 2 decimals.
type ScoreBreakdown struct {
	Novelty       float64 `json:"novelty"`
	Citations     float64 `json:"citations"`
	PeerReviews   float64 `json:"peer_reviews"`
	JournalImpact float64 `json:"journal_impact"`
}

// Sum adds the rounded components. It can differ from ImpactScore.Score by a
// few hundredths because Score is rounded once after summing.
func (b ScoreBreakdown) Sum() float64 {
	return b.Novelty + b.Citations + b.PeerReviews + b.JournalImpact
}

// ImpactScore is the Research Impact Score (RIS) of a publication.
type ImpactScore struct {
	Score     float64        `json:"score"`
	Eligible  bool           `json:"eligible_for_tokenization"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}
