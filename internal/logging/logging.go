package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a structured logger writing to stderr at the given level
func New(level string, json bool) *slog.Logger {
	return NewWithWriter(os.Stderr, level, json)
}

// NewWithWriter builds a logger over an arbitrary writer
func NewWithWriter(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything (tests, dry runs)
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Timing logs the start of an operation and returns a func that logs its duration
func Timing(logger *slog.Logger, operation string, args ...any) func() {
	start := time.Now()
	logger.Debug("starting "+operation, args...)

	return func() {
		logger.Info("completed "+operation, append(args, "took", time.Since(start).Truncate(time.Millisecond))...)
	}
}
