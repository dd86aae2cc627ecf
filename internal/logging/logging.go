// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel overrides the configured log level when set
const EnvLevel = "DOCMENTOR_LOG_LEVEL"

var logLevel = new(slog.LevelVar)

// ParseLevel maps a level name to a slog level. Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure installs a text or json handler on stderr as the default logger
func Configure(level, format string) *slog.Logger {
	return ConfigureWriter(os.Stderr, level, format)
}

// ConfigureWriter is Configure with an explicit destination
func ConfigureWriter(w io.Writer, level, format string) *slog.Logger {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	logLevel.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the level of the logger installed by Configure.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// Level returns the current level
func Level() slog.Level {
	return logLevel.Level()
}
