package logging

import (
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable consulted for the initial log level.
const EnvVar = "KTME_LOG_LEVEL"

var (
	logLevel = new(slog.LevelVar)
	logger   *slog.Logger
)

func init() {
	level, _ := ParseLevel(os.Getenv(EnvVar))
	logLevel.Set(level)

	// stdout carries protocol traffic in stream mode, so logs always go to stderr.
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger = slog.New(handler)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	return logger
}

// SetLogLevel sets the global log level for the whole process.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// Level reports the current global log level.
func Level() slog.Level {
	return logLevel.Level()
}

// ParseLevel converts a level name or number to a slog level.
// Numbers follow 0=Error, 1=Warn, 2=Info, 3=Debug. Names are matched
// case-insensitively. Unknown or empty values yield Warn and false.
func ParseLevel(val string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "0", "error":
		return slog.LevelError, true
	case "1", "warn", "warning":
		return slog.LevelWarn, true
	case "2", "info":
		return slog.LevelInfo, true
	case "3", "debug", "trace":
		return slog.LevelDebug, true
	default:
		return slog.LevelWarn, false
	}
}
