package orchestrator

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// graphDebugLog adapts l to the graph's printf-style hook.
func graphDebugLog(l *slog.Logger) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		l.Debug(fmt.Sprintf(format, args...))
	}
}

// DebugLogger is a file-backed structured logger.
type DebugLogger struct {
	*slog.Logger
	file *os.File
}

// NewDebugLogger creates a logger writing JSON lines to logPath at debug level.
// An empty path returns a no-op logger. Parent directories are created.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return NopLogger(), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &DebugLogger{Logger: slog.New(h), file: f}, nil
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Close closes the log file. Safe on nil or no-op loggers.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
