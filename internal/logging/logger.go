// Package logging provides categorized file-based logging for constraintkit.
// Logging is controlled by the logging section of .constraints/config.yaml;
// when debug_mode is false every logger is a silent no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a logging category
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and configuration
	CategorySession Category = "session" // Logic sessions and threads
	CategoryKernel  Category = "kernel"  // Mangle consult/analysis/evaluation
	CategoryFacts   Category = "facts"   // Fact base generation
	CategoryQuery   Category = "query"   // Queries and answer streaming
	CategoryProject Category = "project" // Workspace discovery and manifests
	CategoryWatch   Category = "watch"   // File watching
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryBoot,
	CategorySession,
	CategoryKernel,
	CategoryFacts,
	CategoryQuery,
	CategoryProject,
	CategoryWatch,
}

// loggingConfig mirrors config.LoggingConfig to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	Format     string          `yaml:"format"` // json, text
}

// configFile structure for reading .constraints/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// StructuredLogEntry is the JSON form of one log line.
type StructuredLogEntry struct {
	Timestamp int64  `json:"ts"`
	Category  string `json:"cat"`
	Level     string `json:"lvl"`
	Message   string `json:"msg"`
	RequestID string `json:"req,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config from the
// workspace. Safe to call more than once; later calls reload the config.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".constraints", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		configMu.Lock()
		config.DebugMode = false
		configMu.Unlock()
	}

	return start()
}

// Configure applies logging settings directly, bypassing the config file.
// Used when the caller has already resolved config and environment overrides.
func Configure(ws string, debug bool, level string, categories map[string]bool, jsonFormat bool) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}
	workspace = ws
	logsDir = filepath.Join(workspace, ".constraints", "logs")

	configMu.Lock()
	config = loggingConfig{DebugMode: debug, Categories: categories, Level: level}
	if jsonFormat {
		config.Format = "json"
	}
	logLevel = parseLevel(level)
	configMu.Unlock()

	return start()
}

func start() error {
	if !IsDebugMode() {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== constraintkit logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)
	if len(config.Categories) == 0 {
		bootLogger.Info("All categories enabled (no category filter)")
	}
	return nil
}

// loadConfig reads the logging section of .constraints/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".constraints", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			config = loggingConfig{}
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	logLevel = parseLevel(config.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
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

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

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

func (l *Logger) write(level, requestID, msg string) {
	if isJSONFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			RequestID: requestID,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	if requestID != "" {
		msg = fmt.Sprintf("[req:%s] %s", requestID, msg)
	}
	switch level {
	case "debug":
		l.logger.Printf("[DEBUG] %s", msg)
	case "info":
		l.logger.Printf("[INFO] %s", msg)
	case "warn":
		l.logger.Printf("[WARN] %s", msg)
	default:
		l.logger.Printf("[ERROR] %s", msg)
	}
}

func (l *Logger) enabled(level int) bool {
	return l.logger != nil && logLevel <= level
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.enabled(LevelDebug) {
		return
	}
	l.write("debug", "", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if !l.enabled(LevelInfo) {
		return
	}
	l.write("info", "", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if !l.enabled(LevelWarn) {
		return
	}
	l.write("warn", "", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.write("error", "", fmt.Sprintf(format, args...))
}

func isJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.Format == "json"
}

// CloseAll closes all open log files (call at shutdown)
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
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})         { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{})    { Get(CategoryBoot).Debug(format, args...) }
func BootError(format string, args ...interface{})    { Get(CategoryBoot).Error(format, args...) }
func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }
func Kernel(format string, args ...interface{})       { Get(CategoryKernel).Info(format, args...) }
func KernelDebug(format string, args ...interface{})  { Get(CategoryKernel).Debug(format, args...) }
func KernelWarn(format string, args ...interface{})   { Get(CategoryKernel).Warn(format, args...) }
func KernelError(format string, args ...interface{})  { Get(CategoryKernel).Error(format, args...) }
func Facts(format string, args ...interface{})        { Get(CategoryFacts).Info(format, args...) }
func FactsDebug(format string, args ...interface{})   { Get(CategoryFacts).Debug(format, args...) }
func Query(format string, args ...interface{})        { Get(CategoryQuery).Info(format, args...) }
func QueryDebug(format string, args ...interface{})   { Get(CategoryQuery).Debug(format, args...) }
func Project(format string, args ...interface{})      { Get(CategoryProject).Info(format, args...) }
func ProjectDebug(format string, args ...interface{}) { Get(CategoryProject).Debug(format, args...) }
func ProjectWarn(format string, args ...interface{})  { Get(CategoryProject).Warn(format, args...) }
func Watch(format string, args ...interface{})        { Get(CategoryWatch).Info(format, args...) }
func WatchError(format string, args ...interface{})   { Get(CategoryWatch).Error(format, args...) }

// =============================================================================
// REQUEST ID TRACING - Correlate log lines of one check or query run
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{logger: Get(category), requestID: requestID}
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	if !r.logger.enabled(LevelDebug) {
		return
	}
	r.logger.write("debug", r.requestID, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if !r.logger.enabled(LevelInfo) {
		return
	}
	r.logger.write("info", r.requestID, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.write("error", r.requestID, fmt.Sprintf(format, args...))
}

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

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
