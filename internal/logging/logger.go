// Package logging provides categorized structured logging for ContextCache.
// Each subsystem logs through a named zap logger so log output can be
// filtered per category, and hot paths can record operation timings.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Process startup and shutdown
	CategoryConfig    Category = "config"    // Configuration loading
	CategoryAPI       Category = "api"       // HTTP request handling
	CategoryStore     Category = "store"     // SQLite store operations
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategorySFC       Category = "sfc"       // Space-filling-curve indexer
	CategoryRanker    Category = "ranker"    // Hybrid score fusion
	CategoryCache     Category = "cache"     // CAG cache
	CategoryRecall    Category = "recall"    // Recall dispatcher
	CategoryGate      Category = "gate"      // Usage/rate gate
	CategoryPipeline  Category = "pipeline"  // Write pipeline and reindexer
	CategoryIngest    Category = "ingest"    // Raw capture ingestion
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the process-wide logger. Level is one of
// debug/info/warn/error; json selects the production JSON encoder instead
// of the console encoder. Safe to call more than once (tests).
func Initialize(level string, json bool) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	base = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Get returns the logger for a category, creating it on first use.
// Safe to call before Initialize; falls back to a no-op logger.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
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
	root := base
	if root == nil {
		root = zap.NewNop()
	}
	l := root.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// =============================================================================
// CONVENIENCE HELPERS (hot categories)
// =============================================================================

// Store logs at info level on the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Infof(format, args...) }

// StoreDebug logs at debug level on the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }

// Embedding logs at info level on the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Infof(format, args...) }

// EmbeddingDebug logs at debug level on the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debugf(format, args...)
}

// Recall logs at info level on the recall category.
func Recall(format string, args ...interface{}) { Get(CategoryRecall).Infof(format, args...) }

// RecallDebug logs at debug level on the recall category.
func RecallDebug(format string, args ...interface{}) { Get(CategoryRecall).Debugf(format, args...) }

// Cache logs at info level on the cache category.
func Cache(format string, args ...interface{}) { Get(CategoryCache).Infof(format, args...) }

// CacheDebug logs at debug level on the cache category.
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debugf(format, args...) }

// Gate logs at info level on the gate category.
func Gate(format string, args ...interface{}) { Get(CategoryGate).Infof(format, args...) }

// Pipeline logs at info level on the pipeline category.
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Infof(format, args...) }

// PipelineDebug logs at debug level on the pipeline category.
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debugf(format, args...)
}

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures the duration of one operation and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation within a category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %s", t.op, elapsed)
	return elapsed
}
