package catalog

import "github.com/ZanzyTHEbar/research-token/internal/scoring"

// Publication is a scientific publication in the index
type Publication struct {
	ID                  string   `json:"id" yaml:"id"`
	Title               string   `json:"title" yaml:"title"`
	Authors             []string `json:"authors" yaml:"authors"`
	Abstract            string   `json:"abstract" yaml:"abstract"`
	Journal             string   `json:"journal" yaml:"journal"`
	Year                int      `json:"year" yaml:"year"`
	DOI                 string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL                 string   `json:"url,omitempty" yaml:"url,omitempty"`
	CitationCount       float64  `json:"citation_count" yaml:"citation_count"`
	NoveltyScore        float64  `json:"novelty_score" yaml:"novelty_score"`
	PeerReviewCount     float64  `json:"peer_review_count" yaml:"peer_review_count"`
	JournalImpactFactor float64  `json:"journal_impact_factor" yaml:"journal_impact_factor"`
	Keywords            []string `json:"keywords" yaml:"keywords"`
	FundingAmount       float64  `json:"funding_amount,omitempty" yaml:"funding_amount,omitempty"`
}

// Metrics extracts the scorer inputs
func (p Publication) Metrics() scoring.PublicationMetrics {
	return scoring.PublicationMetrics{
		NoveltyScore:        p.NoveltyScore,
		CitationCount:       p.CitationCount,
		PeerReviewCount:     p.PeerReviewCount,
		JournalImpactFactor: p.JournalImpactFactor,
	}
}

// Score computes the publication's Research Impact Score
func (p Publication) Score() scoring.ImpactScore {
	return scoring.ComputeImpactScore(p.Metrics())
}

// ScoredPublication pairs a publication with its score
type ScoredPublication struct {
	Publication
	Impact scoring.ImpactScore `json:"impact"`
}

// SearchResponse is one page of search results
type SearchResponse struct {
	Publications []ScoredPublication `json:"publications"`
	TotalResults int                 `json:"total_results"`
	Page         int                 `json:"page"`
	TotalPages   int                 `json:"total_pages"`
}

// QualitativeAnalysis is the qualitative impact assessment of a publication
type QualitativeAnalysis struct {
	Innovation      float64 `json:"innovation" yaml:"innovation"`
	MethodQuality   float64 `json:"method_quality" yaml:"method_quality"`
	PotentialImpact float64 `json:"potential_impact" yaml:"potential_impact"`
	Reproducibility float64 `json:"reproducibility" yaml:"reproducibility"`
}

// ImpactAnalysis is returned by Analyze
type ImpactAnalysis struct {
	Publication    Publication         `json:"publication"`
	Impact         scoring.ImpactScore `json:"impact"`
	ImpactAnalysis QualitativeAnalysis `json:"impact_analysis"`
}
