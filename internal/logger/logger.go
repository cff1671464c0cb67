// Package logger provides structured logging for the bot using Go's slog
// package with configurable levels and formats.
package logger

import (
	"log/slog"
	"os"
)

// New creates a slog Logger with the specified level and format and
// installs it as the process default. Format "text" produces human-readable
// output; anything else falls back to JSON.
func New(levelStr, format string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
