// Package catalog is the searchable index of scientific publications.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/ZanzyTHEbar/research-token/internal/types"
)

// ErrNotFound is returned for an unknown publication id
var ErrNotFound = errors.New("publication not found")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a slice of search results. Zero values pick the defaults.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Index is the publication lookup capability the HTTP layer depends on
type Index interface {
	Search(ctx context.Context, query string, filters types.SearchFilters, page Page) (SearchResponse, error)
	Get(ctx context.Context, id string) (Publication, error)
	Analyze(ctx context.Context, id string) (ImpactAnalysis, error)
	All(ctx context.Context) ([]Publication, error)
}

// MemoryIndex is an immutable in-memory Index. Search is a linear scan.
type MemoryIndex struct {
	publications []Publication
	byID         map[string]int
	analysis     QualitativeAnalysis
}

// NewMemoryIndex builds an index over pubs. The slice is copied.
func NewMemoryIndex(pubs []Publication, analysis QualitativeAnalysis) (*MemoryIndex, error) {
	idx := &MemoryIndex{
		publications: make([]Publication, len(pubs)),
		byID:         make(map[string]int, len(pubs)),
		analysis:     analysis,
	}
	copy(idx.publications, pubs)

	for i, p := range idx.publications {
		if p.ID == "" {
			return nil, errors.New("catalog: publication without id")
		}
		if _, dup := idx.byID[p.ID]; dup {
			return nil, errors.New("catalog: duplicate publication id " + p.ID)
		}
		idx.byID[p.ID] = i
	}

	return idx, nil
}

// Len returns the number of indexed publications
func (idx *MemoryIndex) Len() int {
	return len(idx.publications)
}

// Search matches query case-insensitively against title, abstract, authors
// and keywords, applies filters, then returns the requested page. An empty
// query matches every publication.
func (idx *MemoryIndex) Search(ctx context.Context, query string, filters types.SearchFilters, page Page) (SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return SearchResponse{}, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matches := make([]Publication, 0, len(idx.publications))
	for _, p := range idx.publications {
		if matchesQuery(p, q) && matchesFilters(p, filters) {
			matches = append(matches, p)
		}
	}

	page = page.normalized()
	total := len(matches)
	totalPages := (total + page.Size - 1) / page.Size
	if totalPages < 1 {
		totalPages = 1
	}

	// Pages past the end are empty; checking first keeps the offset from
	// overflowing on huge page numbers.
	start := total
	if page.Number <= totalPages {
		start = (page.Number - 1) * page.Size
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	scored := make([]ScoredPublication, 0, end-start)
	for _, p := range matches[start:end] {
		scored = append(scored, ScoredPublication{Publication: p, Impact: p.Score()})
	}

	return SearchResponse{
		Publications: scored,
		TotalResults: total,
		Page:         page.Number,
		TotalPages:   totalPages,
	}, nil
}

// Get returns the publication with the given id
func (idx *MemoryIndex) Get(ctx context.Context, id string) (Publication, error) {
	if err := ctx.Err(); err != nil {
		return Publication{}, err
	}
	i, ok := idx.byID[id]
	if !ok {
		return Publication{}, ErrNotFound
	}
	return idx.publications[i], nil
}

// Analyze returns the publication with its score and qualitative analysis
func (idx *MemoryIndex) Analyze(ctx context.Context, id string) (ImpactAnalysis, error) {
	p, err := idx.Get(ctx, id)
	if err != nil {
		return ImpactAnalysis{}, err
	}
	return ImpactAnalysis{
		Publication:    p,
		Impact:         p.Score(),
		ImpactAnalysis: idx.analysis,
	}, nil
}

// All returns a copy of every indexed publication
func (idx *MemoryIndex) All(ctx context.Context) ([]Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Publication, len(idx.publications))
	copy(out, idx.publications)
	return out, nil
}

func matchesQuery(p Publication, q string) bool {
	if q == "" {
		return true
	}
	if containsFold(p.Title, q) || containsFold(p.Abstract, q) {
		return true
	}
	return anyContainsFold(p.Authors, q) || anyContainsFold(p.Keywords, q)
}

func matchesFilters(p Publication, f types.SearchFilters) bool {
	if f.Year != 0 && p.Year != f.Year {
		return false
	}
	if f.Years != nil {
		if f.Years.From != 0 && p.Year < f.Years.From {
			return false
		}
		if f.Years.To != 0 && p.Year > f.Years.To {
			return false
		}
	}
	if j := strings.ToLower(f.Journal); j != "" && !containsFold(p.Journal, j) {
		return false
	}
	if a := strings.ToLower(f.Author); a != "" && !anyContainsFold(p.Authors, a) {
		return false
	}
	if t := strings.ToLower(f.Topic); t != "" && !anyContainsFold(p.Keywords, t) && !containsFold(p.Title, t) {
		return false
	}
	return true
}

// containsFold reports whether s contains the already-lowercased needle.
func containsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

func anyContainsFold(values []string, needle string) bool {
	for _, v := range values {
		if containsFold(v, needle) {
			return true
		}
	}
	return false
}
