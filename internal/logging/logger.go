package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog with field helpers used across handlers and services
type Logger struct {
	*slog.Logger
}

// NewLogger writes text to stdout in development and JSON otherwise
func NewLogger(isDev bool) *Logger {
	return New(os.Stdout, isDev)
}

// New builds a logger writing to w. Development output is human-readable at debug level.
func New(w io.Writer, isDev bool) *Logger {
	var handler slog.Handler
	if isDev {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithFields returns a child logger carrying the given fields on every record
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}
