package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState is a helper to save and restore debug state for testing
func saveAndRestoreState(t *testing.T) func() {
	t.Helper()
	originalDebugEnv := os.Getenv("DEBUG")
	originalLogLevelEnv := os.Getenv("LOG_LEVEL")
	originalLogDirEnv := os.Getenv("LOG_DIR")

	mu.Lock()
	originalEnabled := isEnabled
	originalLevel := currentLevel
	mu.Unlock()

	return func() {
		os.Setenv("DEBUG", originalDebugEnv)
		os.Setenv("LOG_LEVEL", originalLogLevelEnv)
		os.Setenv("LOG_DIR", originalLogDirEnv)
		_ = DisableFileLogging()
		mu.Lock()
		isEnabled = originalEnabled
		currentLevel = originalLevel
		mu.Unlock()
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelDebug)
	assert.Equal(t, LogLevel(1), LevelInfo)
	assert.Equal(t, LogLevel(2), LevelWarning)
	assert.Equal(t, LogLevel(3), LevelError)

	assert.Equal(t, "DEBUG", levelNames[LevelDebug])
	assert.Equal(t, "INFO", levelNames[LevelInfo])
	assert.Equal(t, "WARNING", levelNames[LevelWarning])
	assert.Equal(t, "ERROR", levelNames[LevelError])
}

func TestReinitialize(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	tests := []struct {
		name          string
		debugEnv      string
		logLevelEnv   string
		expectEnabled bool
		expectLevel   LogLevel
	}{
		{name: "debug true", debugEnv: "true", logLevelEnv: "", expectEnabled: true, expectLevel: LevelInfo},
		{name: "debug numeric", debugEnv: "1", logLevelEnv: "DEBUG", expectEnabled: true, expectLevel: LevelDebug},
		{name: "debug false", debugEnv: "false", logLevelEnv: "WARNING", expectEnabled: false, expectLevel: LevelWarning},
		{name: "unset", debugEnv: "", logLevelEnv: "", expectEnabled: false, expectLevel: LevelInfo},
		{name: "lowercase level", debugEnv: "", logLevelEnv: "error", expectEnabled: false, expectLevel: LevelError},
		{name: "invalid level defaults to info", debugEnv: "", logLevelEnv: "VERBOSE", expectEnabled: false, expectLevel: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("DEBUG", tt.debugEnv)
			os.Setenv("LOG_LEVEL", tt.logLevelEnv)
			os.Setenv("LOG_DIR", "")

			Reinitialize()

			assert.Equal(t, tt.expectEnabled, IsDebugEnabled())
			assert.Equal(t, tt.expectLevel, GetLogLevel())
		})
	}
}

func TestSetEnabledAndLevel(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	SetEnabled(true)
	assert.True(t, IsDebugEnabled())
	SetEnabled(false)
	assert.False(t, IsDebugEnabled())

	SetLevel(LevelError)
	assert.Equal(t, LevelError, GetLogLevel())
	SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, GetLogLevel())
}

func TestEnableFileLogging(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	dir := t.TempDir()
	assert.NoError(t, EnableFileLogging(dir))
	assert.Equal(t, filepath.Join(dir, LogFileName), GetLogFilePath())

	SetLevel(LevelInfo)
	Info("file logging smoke test %d", 42)

	data, err := os.ReadFile(GetLogFilePath())
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "file logging smoke test 42"))
	assert.True(t, strings.Contains(string(data), "[INFO]"))

	assert.NoError(t, DisableFileLogging())
	assert.Empty(t, GetLogFilePath())
}

func TestEnableFileLoggingIdempotent(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	dir := t.TempDir()
	assert.NoError(t, EnableFileLogging(dir))
	path := GetLogFilePath()
	assert.NoError(t, EnableFileLogging(dir))
	assert.Equal(t, path, GetLogFilePath())
}
