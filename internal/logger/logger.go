package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger handles leveled logging to a size-rotated file
type Logger struct {
	mu       sync.RWMutex
	level    Level
	out      io.WriteCloser
	debugLog *log.Logger
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
}

// Config holds logger configuration
type Config struct {
	LogDir        string
	Level         Level
	MaxSizeMB     int // rotate after this many megabytes
	RetentionDays int // delete rotated files older than this
	MaxBackups    int
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	logDir := filepath.Join(homeDir, "Library", "Application Support", "mictap", "logs")

	return Config{
		LogDir:        logDir,
		Level:         INFO,
		MaxSizeMB:     10,
		RetentionDays: 7,
		MaxBackups:    5,
	}
}

// New creates a new logger. Rotation and retention are handled by lumberjack.
func New(config Config) (*Logger, error) {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, "mictap.log"),
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.RetentionDays,
		MaxBackups: config.MaxBackups,
	}

	return newWithOutput(config.Level, out), nil
}

// newWithOutput builds a logger over an arbitrary sink; used by tests
func newWithOutput(level Level, out io.WriteCloser) *Logger {
	return &Logger{
		level:    level,
		out:      out,
		debugLog: log.New(out, "[DEBUG] ", log.LstdFlags),
		infoLog:  log.New(out, "[INFO] ", log.LstdFlags),
		warnLog:  log.New(out, "[WARN] ", log.LstdFlags),
		errorLog: log.New(out, "[ERROR] ", log.LstdFlags),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.logAt(DEBUG, l.debugLog, format, v...)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.logAt(INFO, l.infoLog, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.logAt(WARN, l.warnLog, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.logAt(ERROR, l.errorLog, format, v...)
}

func (l *Logger) logAt(level Level, out *log.Logger, format string, v ...interface{}) {
	l.mu.RLock()
	enabled := l.level <= level
	l.mu.RUnlock()

	if enabled && out != nil {
		out.Printf(format, v...)
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		return l.out.Close()
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.level
}
