// Package logging provides categorized logging for the product intelligence
// store. Each category writes to its own file under <dir>/logs, backed by
// zap. When logging is disabled (the default for library consumers) every
// call is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a log stream.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup and wiring
	CategoryStore     Category = "store"     // SQLite store operations
	CategoryCache     Category = "cache"     // intelligence cache hits/misses/compiles
	CategoryCrawler   Category = "crawler"   // page fetch and extraction
	CategoryEmbedding Category = "embedding" // embedding provider calls
	CategoryIndex     Category = "index"     // knowledge snippet ingest/search
	CategoryRetrieval Category = "retrieval" // RAG assembly
	CategoryRefresh   Category = "refresh"   // staleness checks and background refresh
)

// Options controls logger construction.
type Options struct {
	Dir   string // base directory; logs go to Dir/logs
	Level string // debug, info, warn, error
	JSON  bool   // JSON encoding instead of console
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*zap.SugaredLogger)
	opts    Options
	enabled bool
)

// Initialize configures the logging directory and level. Must be called once
// at startup before any logging; without it every logger is a no-op.
func Initialize(o Options) error {
	if o.Dir == "" {
		return fmt.Errorf("logging directory required")
	}
	logsDir := filepath.Join(o.Dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	opts = o
	enabled = true
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Close flushes and drops all open loggers.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	enabled = false
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns (or creates) the logger for a category. Returns a no-op logger
// when logging has not been initialized.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if !enabled {
		mu.RUnlock()
		return zap.NewNop().Sugar()
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(opts.Dir, "logs", fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return zap.NewNop().Sugar()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(file), parseLevel(opts.Level))
	l := zap.New(core).Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Convenience wrappers. These are no-ops until Initialize is called.

func Boot(format string, args ...interface{})  { Get(CategoryBoot).Infof(format, args...) }
func Store(format string, args ...interface{}) { Get(CategoryStore).Infof(format, args...) }
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debugf(format, args...)
}
func Cache(format string, args ...interface{}) { Get(CategoryCache).Infof(format, args...) }
func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debugf(format, args...)
}
func Crawler(format string, args ...interface{}) { Get(CategoryCrawler).Infof(format, args...) }
func CrawlerDebug(format string, args ...interface{}) {
	Get(CategoryCrawler).Debugf(format, args...)
}
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Infof(format, args...)
}
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debugf(format, args...)
}
func Index(format string, args ...interface{}) { Get(CategoryIndex).Infof(format, args...) }
func IndexDebug(format string, args ...interface{}) {
	Get(CategoryIndex).Debugf(format, args...)
}
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Infof(format, args...)
}
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debugf(format, args...)
}
func Refresh(format string, args ...interface{}) { Get(CategoryRefresh).Infof(format, args...) }
func RefreshDebug(format string, args ...interface{}) {
	Get(CategoryRefresh).Debugf(format, args...)
}

// Timer measures operation duration and logs it at debug level.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
