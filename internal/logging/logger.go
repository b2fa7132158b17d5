// Package logging emits structured JSON logs for steward runs. Each run
// writes to its own debug.log so a run directory is self-contained for
// post-hoc inspection; run, item, level, and phase context ride along on
// every entry as slog attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Recognized log level names.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// logFileName is the file each run's logger writes inside its run directory.
const logFileName = "debug.log"

// Logger is a leveled JSON logger. The WithX methods derive child loggers
// that share the underlying file; only the root logger should Close it.
// Safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	file   *os.File
	mu     sync.Mutex
	attrs  []slog.Attr
}

// NewLogger opens runDir/debug.log (creating runDir if needed) and returns
// a logger writing JSON entries at or above the given level. An empty
// runDir sends output to stderr instead, which is what the tests and the
// dry-run paths want.
func NewLogger(runDir string, level string) (*Logger, error) {
	sink := io.Writer(os.Stderr)
	var file *os.File

	if runDir != "" {
		f, err := openLogFile(runDir)
		if err != nil {
			return nil, err
		}
		file = f
		sink = f
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: slogLevel(level),
	})
	return &Logger{logger: slog.New(handler), file: file}, nil
}

func openLogFile(runDir string) (*os.File, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(runDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// slogLevel maps a level name onto slog's scale, defaulting to info.
func slogLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun stamps the run ID onto every entry of the derived logger.
func (l *Logger) WithRun(runID string) *Logger {
	return l.child(slog.String("run_id", runID))
}

// WithItem stamps the work-item index onto every entry.
func (l *Logger) WithItem(index int) *Logger {
	return l.child(slog.Int("item", index))
}

// WithLevel stamps the execution level onto every entry.
func (l *Logger) WithLevel(level int) *Logger {
	return l.child(slog.Int("level", level))
}

// WithPhase stamps a phase name ("analysis", "execution", "coordination",
// "evaluation") onto every entry.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.child(slog.String("phase", phase))
}

// With derives a logger carrying the given alternating key-value pairs in
// addition to the parent's attributes. Non-string keys are dropped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	extra := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			extra = append(extra, slog.Any(key, args[i+1]))
		}
	}
	return l.child(extra...)
}

func (l *Logger) child(extra ...slog.Attr) *Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(extra))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, extra...)
	return &Logger{logger: l.logger, file: l.file, attrs: attrs}
}

// Debug logs at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	// Persistent attributes go first so per-call args can shadow them.
	merged := make([]any, 0, len(l.attrs)*2+len(args))
	for _, a := range l.attrs {
		merged = append(merged, a.Key, a.Value.Any())
	}
	merged = append(merged, args...)
	l.logger.Log(context.Background(), level, msg, merged...)
}

// Close syncs and closes the log file. It is a no-op for stderr-backed
// loggers and safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	l.file = nil
	return nil
}

// NopLogger returns a logger that discards everything. Handy in tests and
// wherever a nil check would otherwise be needed.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// ParseLevel normalizes a level name, falling back to INFO for anything
// unrecognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug, LevelWarn, LevelError:
		return strings.ToUpper(level)
	default:
		return LevelInfo
	}
}

// ValidLevels lists the accepted log level names.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
