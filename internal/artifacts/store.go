// Package artifacts implements the per-run, filesystem-backed artifact
// store that the log processor and fix-agent read and write.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// candidateRoots are tried in order; the first one that can be created
// (recursively, idempotently) is used as the logs root for this process.
var candidateRoots = []string{"/logs", "", "/tmp/logs"}

var runIDDisallowed = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const maxRunIDLen = 128

// NormalizeRunID restricts run_id to [A-Za-z0-9._-], truncates to 128
// characters, and falls back to "unknown" when the result is empty.
func NormalizeRunID(runID string) string {
	cleaned := runIDDisallowed.ReplaceAllString(runID, "")
	if len(cleaned) > maxRunIDLen {
		cleaned = cleaned[:maxRunIDLen]
	}
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// ResolveLogsRoot tries the candidate roots in order and returns the first
// one that can be created. cwd is injected for testability.
func ResolveLogsRoot(cwd string) (string, error) {
	roots := make([]string, len(candidateRoots))
	copy(roots, candidateRoots)
	roots[1] = filepath.Join(cwd, "logs")

	var lastErr error
	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			lastErr = err
			continue
		}
		return root, nil
	}
	return "", fmt.Errorf("no writable logs root among candidates: %w", lastErr)
}

// Store is the per-run artifact directory under a resolved logs root.
type Store struct {
	LogsRoot string
	RunID    string // already normalized
}

// New returns a Store for the given (already-normalized) run_id.
func New(logsRoot, normalizedRunID string) *Store {
	return &Store{LogsRoot: logsRoot, RunID: normalizedRunID}
}

// Dir is the run's artifact directory.
func (s *Store) Dir() string {
	return filepath.Join(s.LogsRoot, s.RunID)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir(), name)
}

// WriteText writes name as UTF-8 text, creating the run directory first.
// The write is atomic-enough: a concurrent reader sees either the previous
// file or the complete new one, never a partial write.
func (s *Store) WriteText(name, content string) (string, error) {
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	dst := s.path(name)
	if err := atomicWrite(dst, []byte(content)); err != nil {
		return "", err
	}
	return dst, nil
}

// WriteJSON marshals v as pretty-printed, 2-space-indented JSON and writes
// it atomically. Callers control key order by using a struct (Go's
// encoding/json preserves struct field order) rather than a map.
func (s *Store) WriteJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	dst := s.path(name)
	if err := atomicWrite(dst, data); err != nil {
		return "", err
	}
	return dst, nil
}

// atomicWrite writes to a temp file in the target's directory and renames
// it into place, so a concurrent reader never observes a partial file.
func atomicWrite(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// NowUTC returns the current time formatted as ISO-8601 UTC, the timestamp
// format used throughout analysis.json and the dispatch payloads.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
