// Package logging provides categorized file-based logging for rescuecore.
// Logs are written to a configurable directory with separate files per
// category. Before Init is called (or when disabled) every call is a silent
// no-op, so library code can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and configuration loading
	CategoryPipeline   Category = "pipeline"   // Stage graph execution and routing
	CategoryPerception Category = "perception" // Disaster understanding, LLM parsing
	CategoryReasoning  Category = "reasoning"  // TRR rule matching
	CategoryHTN        Category = "htn"        // Meta-task decomposition
	CategoryMatching   Category = "matching"   // Team search and candidate scoring
	CategoryAllocation Category = "allocation" // NSGA-II / greedy allocation
	CategoryEvaluation Category = "evaluation" // Hard/soft rule evaluation
	CategoryAPI        Category = "api"        // LLM API calls
	CategoryStore      Category = "store"      // Historical case store
	CategoryKG         Category = "kg"         // Knowledge graph queries
	CategoryRegistry   Category = "registry"   // Team registry queries
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	stateMu  sync.RWMutex
	logsDir  string
	enabled  bool
	logLevel = LevelInfo
)

// Init sets up the logging directory and level. Level is one of "debug",
// "info", "warn", "error"; anything else means info. An empty dir disables
// logging entirely.
func Init(dir, level string) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	if dir == "" {
		enabled = false
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir
	enabled = true

	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// Enabled reports whether logging is active.
func Enabled() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return enabled
}

func currentLevel() int {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return logLevel
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger when logging is disabled.
func Get(category Category) *Logger {
	stateMu.RLock()
	dir := logsDir
	on := enabled
	stateMu.RUnlock()

	if !on || dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring the write lock.
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category.
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// PipelineWarn logs warning to the pipeline category.
func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

// PipelineError logs error to the pipeline category.
func PipelineError(format string, args ...interface{}) {
	Get(CategoryPipeline).Error(format, args...)
}

// Perception logs to the perception category.
func Perception(format string, args ...interface{}) {
	Get(CategoryPerception).Info(format, args...)
}

// PerceptionDebug logs debug to the perception category.
func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debug(format, args...)
}

// PerceptionWarn logs warning to the perception category.
func PerceptionWarn(format string, args ...interface{}) {
	Get(CategoryPerception).Warn(format, args...)
}

// PerceptionError logs error to the perception category.
func PerceptionError(format string, args ...interface{}) {
	Get(CategoryPerception).Error(format, args...)
}

// Reasoning logs to the reasoning category.
func Reasoning(format string, args ...interface{}) {
	Get(CategoryReasoning).Info(format, args...)
}

// ReasoningDebug logs debug to the reasoning category.
func ReasoningDebug(format string, args ...interface{}) {
	Get(CategoryReasoning).Debug(format, args...)
}

// ReasoningWarn logs warning to the reasoning category.
func ReasoningWarn(format string, args ...interface{}) {
	Get(CategoryReasoning).Warn(format, args...)
}

// HTN logs to the htn category.
func HTN(format string, args ...interface{}) {
	Get(CategoryHTN).Info(format, args...)
}

// HTNDebug logs debug to the htn category.
func HTNDebug(format string, args ...interface{}) {
	Get(CategoryHTN).Debug(format, args...)
}

// HTNError logs error to the htn category.
func HTNError(format string, args ...interface{}) {
	Get(CategoryHTN).Error(format, args...)
}

// Matching logs to the matching category.
func Matching(format string, args ...interface{}) {
	Get(CategoryMatching).Info(format, args...)
}

// MatchingDebug logs debug to the matching category.
func MatchingDebug(format string, args ...interface{}) {
	Get(CategoryMatching).Debug(format, args...)
}

// MatchingWarn logs warning to the matching category.
func MatchingWarn(format string, args ...interface{}) {
	Get(CategoryMatching).Warn(format, args...)
}

// Allocation logs to the allocation category.
func Allocation(format string, args ...interface{}) {
	Get(CategoryAllocation).Info(format, args...)
}

// AllocationDebug logs debug to the allocation category.
func AllocationDebug(format string, args ...interface{}) {
	Get(CategoryAllocation).Debug(format, args...)
}

// AllocationWarn logs warning to the allocation category.
func AllocationWarn(format string, args ...interface{}) {
	Get(CategoryAllocation).Warn(format, args...)
}

// Evaluation logs to the evaluation category.
func Evaluation(format string, args ...interface{}) {
	Get(CategoryEvaluation).Info(format, args...)
}

// EvaluationDebug logs debug to the evaluation category.
func EvaluationDebug(format string, args ...interface{}) {
	Get(CategoryEvaluation).Debug(format, args...)
}

// EvaluationWarn logs warning to the evaluation category.
func EvaluationWarn(format string, args ...interface{}) {
	Get(CategoryEvaluation).Warn(format, args...)
}

// API logs to the api category.
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category.
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIError logs error to the api category.
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category.
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// KG logs to the kg category.
func KG(format string, args ...interface{}) {
	Get(CategoryKG).Info(format, args...)
}

// KGDebug logs debug to the kg category.
func KGDebug(format string, args ...interface{}) {
	Get(CategoryKG).Debug(format, args...)
}

// KGWarn logs warning to the kg category.
func KGWarn(format string, args ...interface{}) {
	Get(CategoryKG).Warn(format, args...)
}

// Registry logs to the registry category.
func Registry(format string, args ...interface{}) {
	Get(CategoryRegistry).Info(format, args...)
}

// RegistryDebug logs debug to the registry category.
func RegistryDebug(format string, args ...interface{}) {
	Get(CategoryRegistry).Debug(format, args...)
}

// RegistryError logs error to the registry category.
func RegistryError(format string, args ...interface{}) {
	Get(CategoryRegistry).Error(format, args...)
}

// =============================================================================
// REQUEST ID TRACING - Per-run correlation
// =============================================================================

// RequestLogger provides request-scoped logging keyed by the event id.
type RequestLogger struct {
	logger    *Logger
	requestID string
}

// WithRequestID creates a request-scoped logger.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{logger: Get(category), requestID: requestID}
}

func (r *RequestLogger) formatMsg(format string, args ...interface{}) string {
	return fmt.Sprintf("[req:%s] %s", r.requestID, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelDebug {
		return
	}
	r.logger.logger.Printf("[DEBUG] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelInfo {
		return
	}
	r.logger.logger.Printf("[INFO] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || currentLevel() > LevelWarn {
		return
	}
	r.logger.logger.Printf("[WARN] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.logger.Printf("[ERROR] %s", r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
