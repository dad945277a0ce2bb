package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Logger provides structured logging with domain helpers
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// NewLogger creates a JSON logger writing to stdout at info level
func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout, slog.LevelInfo)
}

// NewLoggerWithWriter creates a JSON logger writing to w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lv,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
		level:  lv,
	}
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return NewLoggerWithWriter(io.Discard, slog.LevelError)
}

// ParseLevel maps debug, info, warn and error to a slog level. Unknown
// names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// ScoreLogger logs a computed impact score
func (l *Logger) ScoreLogger(publicationID string, score float64, eligible bool, duration time.Duration) {
	l.Info("Impact Score Computed",
		"publication_id", publicationID,
		"score", score,
		"eligible", eligible,
		"duration_us", duration.Microseconds(),
	)
}

// FundingLogger logs the outcome of a funding
func (l *Logger) FundingLogger(publicationID, method string, amount, tokens float64, success bool, duration time.Duration) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "Funding Processed",
		"publication_id", publicationID,
		"payment_method", method,
		"amount", amount,
		"token_amount", tokens,
		"success", success,
		"duration_ms", duration.Milliseconds(),
	)
}

// LedgerLogger logs a submitted ledger instruction
func (l *Logger) LedgerLogger(instruction, account, signature string, duration time.Duration, err error) {
	if err != nil {
		l.Warn("Ledger Instruction Failed",
			"instruction", instruction,
			"account", account,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return
	}

	l.Info("Ledger Instruction Confirmed",
		"instruction", instruction,
		"account", account,
		"signature", signature,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// ExternalAPILogger logs external API calls
func (l *Logger) ExternalAPILogger(apiName, operation string, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "External API Call",
		"api_name", apiName,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}

	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

var startTime = time.Now()
