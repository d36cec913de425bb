package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Service string
	Level   string
	// Output defaults to stdout. ragctl passes stderr or a file, since its
	// stdout carries answers, the chat screen or the MCP stream.
	Output io.Writer
}

// New returns a JSON logger tagged with the service name. LOG_LEVEL=off
// discards everything.
func New(opts Options) *slog.Logger {
	level, enabled := parseLevel(opts.Level)
	if !enabled {
		return slog.New(slog.DiscardHandler)
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", opts.Service)
}

func NewJSONLogger(service, level string) *slog.Logger {
	return New(Options{Service: service, Level: level})
}

// OpenFile appends JSON log lines to path.
func OpenFile(path, service, level string) (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(Options{Service: service, Level: level, Output: f}), f.Close, nil
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "off", "none":
		return 0, false
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, true
	}
}
