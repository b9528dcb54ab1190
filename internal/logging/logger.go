// Package logging provides categorized, zap-backed logging for optiquery.
// Every subsystem logs through its own category so output can be filtered
// per concern. Until Initialize (or SetLogger) is called all loggers are
// no-ops, which keeps library use of the engine silent by default.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Boot/initialization
	CategoryConfig       Category = "config"       // Config loading and validation
	CategoryAPI          Category = "api"          // LLM API calls
	CategoryConversation Category = "conversation" // Driver state transitions and turns
	CategoryEvidence     Category = "evidence"     // Evidence providers
	CategoryDatabase     Category = "database"     // Graph database sessions
	CategoryPerformance  Category = "performance"  // Slow operations
	CategoryAudit        Category = "audit"        // Structured audit events
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "console" or "json".
	Format string
	// File receives log output instead of stderr when set.
	File string
	// Categories disables individual categories when mapped to false.
	// Missing categories are enabled.
	Categories map[string]bool
}

// Logger is a category-scoped logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the root logger from opts. It may be called again to
// reconfigure; existing category loggers are discarded.
func Initialize(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	switch opts.Format {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case "json":
		cfg.Encoding = "json"
	default:
		return fmt.Errorf("invalid log format %q: must be console or json", opts.Format)
	}
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	_ = root.Sync()
	root = logger
	categories = copyCategories(opts.Categories)
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	Get(CategoryBoot).Debug("logging initialized (level=%s, format=%s)", level, cfg.Encoding)
	return nil
}

// SetLogger replaces the root logger, typically with a zaptest or observer
// logger. The returned function restores the previous state.
func SetLogger(l *zap.Logger) (restore func()) {
	mu.Lock()
	prevRoot, prevCats := root, categories
	root = l
	categories = nil
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	return func() {
		mu.Lock()
		root = prevRoot
		categories = prevCats
		loggers = make(map[Category]*Logger)
		mu.Unlock()
	}
}

// Root returns the underlying zap logger for code that prefers typed fields.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered output (call at shutdown).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	base := root
	if !categoryEnabledLocked(category) {
		base = zap.NewNop()
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func copyCategories(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// API logs to the api category
func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Conversation logs to the conversation category
func Conversation(format string, args ...interface{}) {
	Get(CategoryConversation).Info(format, args...)
}

func ConversationDebug(format string, args ...interface{}) {
	Get(CategoryConversation).Debug(format, args...)
}

// Evidence logs to the evidence category
func Evidence(format string, args ...interface{})      { Get(CategoryEvidence).Info(format, args...) }
func EvidenceDebug(format string, args ...interface{}) { Get(CategoryEvidence).Debug(format, args...) }

// Database logs to the database category
func Database(format string, args ...interface{})      { Get(CategoryDatabase).Info(format, args...) }
func DatabaseDebug(format string, args ...interface{}) { Get(CategoryDatabase).Debug(format, args...) }
func DatabaseWarn(format string, args ...interface{})  { Get(CategoryDatabase).Warn(format, args...) }

func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	category  Category
	requestID string
	fields    []interface{}
}

// WithRequestID creates a request-scoped logger. Conversations use their id.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{category: category, requestID: requestID}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields = append(r.fields, key, value)
	return r
}

func (r *RequestLogger) sugar() *zap.SugaredLogger {
	kv := append([]interface{}{"req", r.requestID}, r.fields...)
	return Get(r.category).sugar.With(kv...)
}

func (r *RequestLogger) Debug(format string, args ...interface{}) { r.sugar().Debugf(format, args...) }
func (r *RequestLogger) Info(format string, args ...interface{})  { r.sugar().Infof(format, args...) }
func (r *RequestLogger) Warn(format string, args ...interface{})  { r.sugar().Warnf(format, args...) }
func (r *RequestLogger) Error(format string, args ...interface{}) { r.sugar().Errorf(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning to the performance category if the
// duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("%s/%s took %v (threshold: %v)", t.category, t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
