package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

// LogFileName is the name of the log file when file logging is enabled
const LogFileName = "hashbreaker.log"

var (
	// mu protects all mutable state from concurrent access
	mu sync.RWMutex

	// isEnabled controls whether debug-level messages are output
	isEnabled bool
	// currentLevel is the minimum level of messages to output
	currentLevel LogLevel

	// File logging state
	fileLoggingEnabled bool
	logFile            *os.File
	logFilePath        string

	stdoutLogger *log.Logger
	multiLogger  *log.Logger

	levelNames = map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
	}
	levelMap = map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarning,
		"ERROR":   LevelError,
	}
)

func init() {
	stdoutLogger = log.New(os.Stdout, "", 0)

	debugEnv := os.Getenv("DEBUG")
	enabled := debugEnv == "true" || debugEnv == "1"

	levelEnv := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	level := LevelInfo
	if l, exists := levelMap[levelEnv]; exists {
		level = l
	}

	mu.Lock()
	isEnabled = enabled
	currentLevel = level
	mu.Unlock()

	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		_ = EnableFileLogging(logDir)
	}
}

// IsDebugEnabled returns whether debug logging is enabled (thread-safe)
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return isEnabled
}

// GetLogLevel returns the current log level (thread-safe)
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// GetLogFilePath returns the path to the log file if file logging is enabled
func GetLogFilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return logFilePath
}

// EnableFileLogging enables writing logs to a file in the specified directory.
// The log file will be created at logsDir/hashbreaker.log
func EnableFileLogging(logsDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if fileLoggingEnabled && logFilePath == filepath.Join(logsDir, LogFileName) {
		return nil
	}

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(logsDir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	logFilePath = path
	fileLoggingEnabled = true
	multiLogger = log.New(io.MultiWriter(os.Stdout, f), "", 0)

	return nil
}

// DisableFileLogging disables file logging and closes the log file
func DisableFileLogging() error {
	mu.Lock()
	defer mu.Unlock()

	if !fileLoggingEnabled {
		return nil
	}

	fileLoggingEnabled = false
	logFilePath = ""
	multiLogger = nil

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}

	return nil
}

// Log prints a message with the specified level if it passes the level filter.
// Debug-level messages additionally require DEBUG to be enabled.
func Log(level LogLevel, format string, v ...interface{}) {
	mu.RLock()
	enabled := isEnabled
	minLevel := currentLevel
	fileEnabled := fileLoggingEnabled
	mu.RUnlock()

	if level < minLevel {
		return
	}
	if level == LevelDebug && !enabled {
		return
	}

	// Skip 2 frames: Log -> Debug/Info/etc -> actual caller
	_, file, line, _ := runtime.Caller(2)

	message := fmt.Sprintf(format, v...)
	timestampStr := time.Now().Format("2006-01-02 15:04:05.000")

	logLine := fmt.Sprintf("[%s] [%s] [%s:%d] %s",
		levelNames[level],
		timestampStr,
		filepath.Base(file),
		line,
		message,
	)

	mu.RLock()
	if fileEnabled && multiLogger != nil {
		multiLogger.Print(logLine)
	} else {
		stdoutLogger.Print(logLine)
	}
	mu.RUnlock()
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	Log(LevelDebug, format, v...)
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	Log(LevelInfo, format, v...)
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	Log(LevelWarning, format, v...)
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	Log(LevelError, format, v...)
}

// SetEnabled directly sets the debug enabled state (used for runtime toggling)
func SetEnabled(enabled bool) {
	mu.Lock()
	isEnabled = enabled
	mu.Unlock()
}

// SetLevel directly sets the log level (used for runtime changes)
func SetLevel(level LogLevel) {
	mu.Lock()
	currentLevel = level
	mu.Unlock()
}

// Reinitialize reinitializes the debug package from current environment variables
func Reinitialize() {
	debugEnv := os.Getenv("DEBUG")
	enabled := debugEnv == "true" || debugEnv == "1"

	levelEnv := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	level := LevelInfo
	if l, exists := levelMap[levelEnv]; exists {
		level = l
	}

	mu.Lock()
	isEnabled = enabled
	currentLevel = level
	mu.Unlock()

	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		_ = EnableFileLogging(logDir)
	} else {
		_ = DisableFileLogging()
	}
}
