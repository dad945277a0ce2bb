package leaderboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/research-token/internal/cache"
)

const cachePath = "leaderboard"

// LeaderboardCache provides caching for leaderboard data
type LeaderboardCache struct {
	cache *cache.Cache
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		cache: cache.NewCache(ttl),
	}
}

func cacheKey(limit int) string {
	return fmt.Sprintf("leaderboard:%d", limit)
}

// Get retrieves a cached leaderboard
func (lc *LeaderboardCache) Get(limit int) (*Response, bool) {
	key := cacheKey(limit)

	item, found := lc.cache.Get(key)
	if !found {
		return nil, false
	}

	var response Response
	if err := json.Unmarshal(item.Data, &response); err != nil {
		slog.Error("Failed to unmarshal cached leaderboard data", "error", err, "key", key)
		return nil, false
	}

	slog.Debug("Leaderboard cache hit", "limit", limit)
	return &response, true
}

// Set caches a leaderboard
func (lc *LeaderboardCache) Set(limit int, response *Response) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal leaderboard data for cache", "error", err, "limit", limit)
		return
	}

	lc.cache.Set(cacheKey(limit), cachePath, "application/json", data)
	slog.Debug("Leaderboard cached", "limit", limit, "entries", len(response.Entries))
}

// InvalidateAll drops every cached leaderboard
func (lc *LeaderboardCache) InvalidateAll() {
	removed := lc.cache.InvalidatePath(cachePath)
	slog.Debug("Invalidated leaderboard cache", "entries", removed)
}

// GetStats returns cache statistics
func (lc *LeaderboardCache) GetStats() map[string]interface{} {
	return lc.cache.Stats()
}

// Close stops the cache sweeper
func (lc *LeaderboardCache) Close() {
	lc.cache.Close()
}
