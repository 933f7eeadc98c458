// Package logging provides file-based operational logs for capsule.
// Entries go to a global log file (<data>/logs/capsule.log) and, for entries
// about a task, to <data>/logs/task-N.log as well.
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
	"time"

	"github.com/runoshun/capsule/internal/domain"
)

var _ domain.Logger = (*Logger)(nil)

// Logger writes domain log entries to files and optionally mirrors them to
// a slog.Logger. Safe for concurrent use.
// Fields are ordered to minimize memory padding.
type Logger struct {
	clock      domain.Clock
	mirror     *slog.Logger
	globalFile *os.File
	taskFiles  map[int]*os.File
	dataDir    string
	mu         sync.Mutex
	level      slog.Level
}

// Option configures a Logger.
type Option func(*Logger)

// WithMirror forwards every written entry to logger as well.
func WithMirror(logger *slog.Logger) Option {
	return func(l *Logger) { l.mirror = logger }
}

// WithClock overrides the timestamp source.
func WithClock(clock domain.Clock) Option {
	return func(l *Logger) { l.clock = clock }
}

// New creates a Logger writing under dataDir/logs.
// If dataDir is empty, file output is disabled.
func New(dataDir string, level slog.Level, opts ...Option) *Logger {
	l := &Logger{
		clock:     domain.RealClock{},
		dataDir:   dataDir,
		level:     level,
		taskFiles: make(map[int]*os.File),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ParseLevel parses a log level string into slog.Level.
// Unknown values yield info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

func (l *Logger) openLocked(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	// Log files are append-only and need read access by project members
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// write appends entry to the global file and, when taskID > 0, the task file.
func (l *Logger) write(taskID int, entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.globalFile == nil {
		f, err := l.openLocked(domain.GlobalLogPath(l.dataDir))
		if err != nil {
			return
		}
		l.globalFile = f
	}
	_, _ = io.WriteString(l.globalFile, entry)

	if taskID <= 0 {
		return
	}
	tf, ok := l.taskFiles[taskID]
	if !ok {
		f, err := l.openLocked(domain.TaskLogPath(l.dataDir, taskID))
		if err != nil {
			return
		}
		l.taskFiles[taskID] = f
		tf = f
	}
	_, _ = io.WriteString(tf, entry)
}

// Close closes all open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	if l.globalFile != nil {
		if err := l.globalFile.Close(); err != nil {
			lastErr = err
		}
		l.globalFile = nil
	}
	for id, f := range l.taskFiles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(l.taskFiles, id)
	}
	return lastErr
}

// formatLog formats a log entry.
// Format: [2025-12-30 09:32:51] [INFO] [task-1] [category] message
func formatLog(t time.Time, level slog.Level, taskID int, category, msg string) string {
	taskStr := "global"
	if taskID > 0 {
		taskStr = fmt.Sprintf("task-%d", taskID)
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n",
		t.Format("2006-01-02 15:04:05"),
		levelToString(level),
		taskStr,
		category,
		msg,
	)
}

func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l *Logger) log(level slog.Level, taskID int, category, msg string) {
	if level < l.level {
		return
	}
	if l.mirror != nil {
		attrs := []any{slog.String("category", category)}
		if taskID > 0 {
			attrs = append(attrs, slog.Int("task_id", taskID))
		}
		l.mirror.Log(context.Background(), level, msg, attrs...)
	}
	if l.dataDir == "" {
		return
	}
	l.write(taskID, formatLog(l.clock.Now(), level, taskID, category, msg))
}

// Info logs an info message.
func (l *Logger) Info(taskID int, category, msg string) {
	l.log(slog.LevelInfo, taskID, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(taskID int, category, msg string) {
	l.log(slog.LevelDebug, taskID, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(taskID int, category, msg string) {
	l.log(slog.LevelWarn, taskID, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(taskID int, category, msg string) {
	l.log(slog.LevelError, taskID, category, msg)
}
