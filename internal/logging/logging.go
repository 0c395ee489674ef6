// Package logging provides the structured logger used across the gateway,
// processor, and fix-agent binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Custom slog levels for graduated verbosity, below slog.LevelDebug.
const (
	// LevelTrace is used at -vv: request/response bodies, prompts, upstream payloads.
	LevelTrace slog.Level = slog.LevelDebug - 4 // -8

	// LevelDump is used at -vvv: raw log bytes, full subprocess stdout.
	LevelDump slog.Level = slog.LevelDebug - 8 // -12
)

// LevelFromCount maps a -v repeat count to a slog.Level, matching the
// medivac CLI's verbosity scheme: 0 -> Info, 1 -> Debug, 2 -> Trace, 3+ -> Dump.
func LevelFromCount(count int) slog.Level {
	switch {
	case count >= 3:
		return LevelDump
	case count == 2:
		return LevelTrace
	case count == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New creates a structured logger that writes to stderr at the given level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewFileLogger creates a logger writing to both stderr and a persistent log
// file under <dir>/logs/. Returns the logger, the log file path (empty if the
// file could not be created), and a cleanup function to close it.
func NewFileLogger(dir string, level slog.Level) (*slog.Logger, string, func()) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return New(level), "", func() {}
	}

	logFile := filepath.Join(logDir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(level), "", func() {}
	}

	w := io.MultiWriter(os.Stderr, f)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), logFile, func() { f.Close() }
}
