// Package cache holds rendered API responses for a short TTL.
package cache

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
)

// CacheItem represents a cached response with expiration
type CacheItem struct {
	Data        []byte    `json:"data"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired checks if the cache item has expired at now
func (c *CacheItem) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cache provides thread-safe caching with TTL
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a new cache with the specified TTL and starts a sweeper
func NewCache(ttl time.Duration) *Cache {
	cache := &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	go cache.cleanup(5 * time.Minute)

	return cache
}

// Close stops the sweeper
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired items and returns how many were dropped
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.IsExpired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Key hashes a request URI into a cache key
func Key(uri string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(uri)))
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (*CacheItem, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if item.IsExpired(c.now()) {
		c.Delete(key)
		return nil, false
	}
	return item, true
}

// Set stores a response in the cache
func (c *Cache) Set(key, path, contentType string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Data:        data,
		ContentType: contentType,
		Path:        path,
		ExpiresAt:   c.now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// InvalidatePath drops every response cached for path, whatever its query
func (c *Cache) InvalidatePath(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.Path == path {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0

	for _, item := range c.items {
		if item.IsExpired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Middleware caches successful GET responses of the given route paths. The
// key covers the full request URI so every query is cached separately.
func (c *Cache) Middleware(metrics *monitoring.Metrics, logger *monitoring.Logger, paths ...string) gin.HandlerFunc {
	cached := make(map[string]bool, len(paths))
	for _, p := range paths {
		cached[p] = true
	}

	return func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if ctx.Request.Method != http.MethodGet || !cached[path] {
			ctx.Next()
			return
		}

		key := Key(ctx.Request.URL.RequestURI())

		if item, found := c.Get(key); found {
			metrics.IncrementCacheHit()
			logger.CacheLogger("get", key, true, c.Size())
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, item.ContentType, item.Data)
			ctx.Abort()
			return
		}

		metrics.IncrementCacheMiss()
		logger.CacheLogger("get", key, false, c.Size())
		ctx.Header("X-Cache", "MISS")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if wrapper.Status() == http.StatusOK {
			c.Set(key, path, wrapper.Header().Get("Content-Type"), wrapper.body.Bytes())
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
