// Package leaderboard ranks publications by the funding they received.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZanzyTHEbar/research-token/internal/catalog"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

const (
	DefaultLimit    = 50
	MaxLimit        = 100
	DefaultSchedule = "@every 10m"
)

// warmLimits are the page sizes refreshed by the scheduled warm
var warmLimits = []int{10, 25, DefaultLimit}

// ErrNotRanked is returned for a publication missing from the catalog
var ErrNotRanked = errors.New("publication not ranked")

// Totals reports aggregated fundings per publication
type Totals interface {
	FundingTotals(ctx context.Context) ([]types.FundingTotal, error)
}

// Entry is one ranked publication
type Entry struct {
	Rank          int     `json:"rank"`
	PublicationID string  `json:"publication_id"`
	Title         string  `json:"title"`
	Journal       string  `json:"journal"`
	Year          int     `json:"year"`
	ImpactScore   float64 `json:"impact_score"`
	Eligible      bool    `json:"eligible"`
	TotalFunding  float64 `json:"total_funding"`
	TotalTokens   float64 `json:"total_tokens"`
	Fundings      int     `json:"fundings"`
}

// Response represents the response for leaderboard queries
type Response struct {
	Entries     []Entry   `json:"entries"`
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service handles leaderboard operations
type Service struct {
	totals  Totals
	catalog catalog.Index
	cache   *LeaderboardCache
}

// NewService creates a leaderboard service with a 15 minute cache
func NewService(totals Totals, idx catalog.Index) *Service {
	return NewServiceWithCache(totals, idx, NewLeaderboardCache(15*time.Minute))
}

// NewServiceWithCache creates a leaderboard service with a custom cache
func NewServiceWithCache(totals Totals, idx catalog.Index, cache *LeaderboardCache) *Service {
	return &Service{totals: totals, catalog: idx, cache: cache}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// GetLeaderboard returns the top publications, serving from cache when it can
func (s *Service) GetLeaderboard(ctx context.Context, limit int) (*Response, error) {
	limit = clampLimit(limit)

	if cached, found := s.cache.Get(limit); found {
		return cached, nil
	}

	entries, err := s.rank(ctx)
	if err != nil {
		return nil, err
	}

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	response := &Response{
		Entries:     entries,
		Total:       total,
		GeneratedAt: time.Now().UTC(),
	}
	s.cache.Set(limit, response)
	return response, nil
}

// GetRank returns the entry of one publication
func (s *Service) GetRank(ctx context.Context, publicationID string) (*Entry, error) {
	entries, err := s.rank(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].PublicationID == publicationID {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRanked, publicationID)
}

// rank orders every catalog publication by total funding, then impact
// score, then id.
func (s *Service) rank(ctx context.Context) ([]Entry, error) {
	pubs, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	totals, err := s.totals.FundingTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query funding totals: %w", err)
	}

	byID := make(map[string]types.FundingTotal, len(totals))
	for _, t := range totals {
		byID[t.PublicationID] = t
	}

	entries := make([]Entry, 0, len(pubs))
	for _, p := range pubs {
		impact := p.Score()
		t := byID[p.ID]
		entries = append(entries, Entry{
			PublicationID: p.ID,
			Title:         p.Title,
			Journal:       p.Journal,
			Year:          p.Year,
			ImpactScore:   impact.Score,
			Eligible:      impact.Eligible,
			TotalFunding:  t.TotalAmount,
			TotalTokens:   t.TotalTokens,
			Fundings:      t.Fundings,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalFunding != b.TotalFunding {
			return a.TotalFunding > b.TotalFunding
		}
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		return a.PublicationID < b.PublicationID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Invalidate drops cached leaderboards after a funding
func (s *Service) Invalidate() {
	s.cache.InvalidateAll()
}

// WarmCache rebuilds the popular leaderboard sizes
func (s *Service) WarmCache(ctx context.Context) {
	slog.Info("Starting leaderboard cache warming")

	s.cache.InvalidateAll()
	for _, limit := range warmLimits {
		if _, err := s.GetLeaderboard(ctx, limit); err != nil {
			slog.Error("Failed to warm cache for leaderboard", "error", err, "limit", limit)
		}
	}

	slog.Info("Leaderboard cache warming completed")
}

// GetCacheStats returns leaderboard cache statistics
func (s *Service) GetCacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// StartAutoRefresh warms the cache on a cron schedule. The caller stops the
// returned scheduler.
func (s *Service) StartAutoRefresh(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		slog.Debug("Auto-refreshing leaderboard cache")
		s.WarmCache(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid leaderboard schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

// Close releases the cache
func (s *Service) Close() {
	s.cache.Close()
}
