package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg == nil {
		return buildLogger(os.Stdout, "", "")
	}
	return buildLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

// NewClientLogger logs to w, which is stderr for the CLI so output stays clean.
func NewClientLogger(cfg *ClientConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		return buildLogger(w, "", "warn")
	}
	return buildLogger(w, cfg.LogFormat, cfg.LogLevel)
}

func buildLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: parseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
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
