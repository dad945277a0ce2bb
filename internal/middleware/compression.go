// Package middleware holds transport-level gin middleware.
package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"application/javascript",
		},
	}
}

// CompressionMiddleware gzips large responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &CompressionMiddleware{
		config: config,
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns the gin middleware. The response is buffered so the size
// threshold can be checked before any byte is sent.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		original := c.Writer
		bw := &bufferedWriter{ResponseWriter: original, body: &bytes.Buffer{}}
		c.Writer = bw
		c.Next()
		c.Writer = original

		// Nothing written: leave the original writer untouched for gin's
		// own 404/405 fallback.
		if bw.status == 0 {
			return
		}
		body := bw.body.Bytes()

		if len(body) < cm.config.MinSize || !cm.shouldCompress(original.Header().Get("Content-Type")) ||
			original.Header().Get("Content-Encoding") != "" {
			cm.stats.record(int64(len(body)), 0, false)
			original.WriteHeader(bw.status)
			_, _ = original.Write(body)
			return
		}

		var compressed bytes.Buffer
		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(&compressed)
		_, err := gz.Write(body)
		if err == nil {
			err = gz.Close()
		}
		cm.pool.Put(gz)
		if err != nil {
			cm.stats.record(int64(len(body)), 0, false)
			original.WriteHeader(bw.status)
			_, _ = original.Write(body)
			return
		}

		cm.stats.record(int64(len(body)), int64(compressed.Len()), true)
		h := original.Header()
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		h.Set("Content-Length", strconv.Itoa(compressed.Len()))
		original.WriteHeader(bw.status)
		_, _ = original.Write(compressed.Bytes())
	}
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// Stats returns the compression counters
func (cm *CompressionMiddleware) Stats() map[string]interface{} {
	return cm.stats.snapshot()
}

// bufferedWriter holds the status and body until the handler chain returns
type bufferedWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *bufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.status != 0
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	totalRequests      int64
	compressedRequests int64
	totalBytes         int64
	compressedBytes    int64
}

func (cs *CompressionStats) record(originalSize, compressedSize int64, compressed bool) {
	atomic.AddInt64(&cs.totalRequests, 1)
	atomic.AddInt64(&cs.totalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.compressedRequests, 1)
		atomic.AddInt64(&cs.compressedBytes, compressedSize)
	}
}

func (cs *CompressionStats) snapshot() map[string]interface{} {
	total := atomic.LoadInt64(&cs.totalRequests)
	compressed := atomic.LoadInt64(&cs.compressedRequests)
	totalBytes := atomic.LoadInt64(&cs.totalBytes)
	compressedBytes := atomic.LoadInt64(&cs.compressedBytes)

	ratio := 0.0
	if compressed > 0 && totalBytes > 0 {
		ratio = float64(compressedBytes) / float64(totalBytes)
	}

	return map[string]interface{}{
		"total_requests":      total,
		"compressed_requests": compressed,
		"total_bytes":         totalBytes,
		"compressed_bytes":    compressedBytes,
		"compression_ratio":   ratio,
	}
}
