// Package logging provides structured logging helpers for the repository and the CLI.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	queryIDKey contextKey = "query_id"
)

// Logger wraps slog.Logger with convenience methods
type Logger struct {
	*slog.Logger
}

// Config holds logging configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, text
	Output io.Writer // defaults to stderr
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// NewLogger creates a new structured logger based on configuration
func NewLogger(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for error and above
		AddSource: level <= slog.LevelError,
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithQueryID returns a new logger with the query ID field attached
func (l *Logger) WithQueryID(queryID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("query_id", queryID)),
	}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
	}
}

// FromContext retrieves the logger from context, or returns a default logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found in context
	return &Logger{
		Logger: slog.Default(),
	}
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetQueryID retrieves the query ID from context
func GetQueryID(ctx context.Context) string {
	if queryID, ok := ctx.Value(queryIDKey).(string); ok {
		return queryID
	}
	return ""
}

// WithQueryIDContext adds a query ID to the context
func WithQueryIDContext(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}
