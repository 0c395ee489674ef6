// Package patchengine implements the Fix-Agent's deterministic, narrowly
// scoped code transforms and the hard guardrails around them.
package patchengine

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/subprocess"
)

var allowlistPrefixes = []string{"tests/", "django/"}

// CandidateFiles unions the extracted spec paths and the suspected paths,
// keeps only allowlisted paths, and caps the result at maxFiles.
func CandidateFiles(specPaths, suspectedPaths []string, maxFiles int) []string {
	seen := make(map[string]bool)
	var out []string

	for _, p := range append(append([]string{}, specPaths...), suspectedPaths...) {
		if seen[p] || !allowlisted(p) {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if len(out) >= maxFiles {
			break
		}
	}
	return out
}

func allowlisted(path string) bool {
	for _, prefix := range allowlistPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TransformResult records what the engine attempted and what it changed.
type TransformResult struct {
	AttemptedFiles []string
	ChangedFiles   []string
}

var (
	playwrightImportPat = regexp.MustCompile(`(?m)^import .*['"]@playwright/test['"]`)
	setTimeoutCallPat   = regexp.MustCompile(`test\.setTimeout\(`)
	leadingBlockPat     = regexp.MustCompile(`(?m)\A(?:^(?:import .*|)\n)+`)
)

// ApplyFrontendTiming inserts test.setTimeout(60000) immediately after the
// leading import/blank-line block in each candidate file that imports the
// Playwright test framework and does not already call test.setTimeout.
func ApplyFrontendTiming(files []string) (TransformResult, error) {
	result := TransformResult{AttemptedFiles: files}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue // missing/unreadable candidate files are skipped, not fatal
		}
		src := string(data)

		if !playwrightImportPat.MatchString(src) || setTimeoutCallPat.MatchString(src) {
			continue
		}

		insertion := "test.setTimeout(60000);\n"
		var updated string
		if loc := leadingBlockPat.FindStringIndex(src); loc != nil {
			updated = src[:loc[1]] + insertion + src[loc[1]:]
		} else {
			updated = insertion + src
		}

		if err := os.WriteFile(f, []byte(updated), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", f, err)
		}
		result.ChangedFiles = append(result.ChangedFiles, f)
	}
	return result, nil
}

var strictModeLocatorPat = regexp.MustCompile(`strict mode violation.*locator\('([^']*)'\)`)

// ExtractStrictModeLocators pulls every distinct selector named in a
// "strict mode violation ... locator('<sel>')" message in the snippet.
func ExtractStrictModeLocators(snippet string) []string {
	matches := strictModeLocatorPat.FindAllStringSubmatch(snippet, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		sel := m[1]
		if seen[sel] {
			continue
		}
		seen[sel] = true
		out = append(out, sel)
	}
	return out
}

// ApplyFrontendSelector replaces exact-match page.locator('<sel>') calls
// with page.locator('<sel>').first(), for each extracted selector, stopping
// after the first file that changes.
func ApplyFrontendSelector(files []string, selectors []string) (TransformResult, error) {
	result := TransformResult{AttemptedFiles: files}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		src := string(data)
		updated := src
		changed := false

		for _, sel := range selectors {
			for _, quote := range []string{"'", "\""} {
				from := "page.locator(" + quote + sel + quote + ")"
				to := from + ".first()"
				if !strings.Contains(updated, from) {
					continue
				}
				// Guard against double-application: a locator call already
				// followed by .first() must not gain a second one.
				alreadyApplied := strings.Contains(updated, to)
				if alreadyApplied {
					continue
				}
				updated = strings.ReplaceAll(updated, from, to)
				changed = true
			}
		}

		if !changed {
			continue
		}
		if err := os.WriteFile(f, []byte(updated), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", f, err)
		}
		result.ChangedFiles = append(result.ChangedFiles, f)
		break // stop after the first file that changes
	}
	return result, nil
}

// numstatLinePat parses one `git diff --numstat` line: added, deleted, path.
var numstatLinePat = regexp.MustCompile(`^(\d+|-)\s+(\d+|-)\s+(.+)$`)

// DiffStats summarizes `git diff --numstat` output.
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesDeleted int
	LinesTotal   int
}

// ParseNumstat sums the numstat lines into aggregate diff stats. Binary
// files report "-" for add/delete counts and are counted as a changed file
// with zero line contribution.
func ParseNumstat(output string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		m := numstatLinePat.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		stats.FilesChanged++
		added, _ := strconv.Atoi(m[1])
		deleted, _ := strconv.Atoi(m[2])
		stats.LinesAdded += added
		stats.LinesDeleted += deleted
	}
	stats.LinesTotal = stats.LinesAdded + stats.LinesDeleted
	return stats
}

// RevertAll checks out every changed file's HEAD version, undoing a
// guardrail-violating transform.
func RevertAll(ctx context.Context, r subprocess.Runner, dir string, files []string) error {
	var firstErr error
	for _, f := range files {
		if err := subprocess.GitCheckoutFile(ctx, r, dir, f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SelectTransform reports whether error_type has a deterministic transform
// at all; other error types make no edits, per spec.
func SelectTransform(errorType classifier.ErrorType) bool {
	return errorType == classifier.ErrorFrontendTiming || errorType == classifier.ErrorFrontendSelector
}
