// Package utils holds the ambient helpers shared across the service: the
// structured logger, the error taxonomy, and latency bookkeeping.
package utils

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Unknown level strings fall back to
// info rather than failing startup.
func NewLogger(level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
