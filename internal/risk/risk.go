// Package risk implements the pure risk-scoring function that gates
// downstream pull-request automation.
package risk

import (
	"strings"

	"github.com/praxi/ci-triage/internal/classifier"
)

// Level names a risk bucket, derived from Score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// ValidationOutcome names whether a validation rerun happened and its result.
type ValidationOutcome string

const (
	ValidationOK           ValidationOutcome = "ok"
	ValidationFailed       ValidationOutcome = "failed"
	ValidationNotAttempted ValidationOutcome = "not-attempted"
)

// Scope classifies where the changed files live, coarsest risk dimension
// besides error_type.
type Scope string

const (
	ScopeTestOnly       Scope = "test-only"
	ScopeBackend        Scope = "backend"
	ScopeInfrastructure Scope = "infrastructure"
)

// DiffStats mirrors `git diff --numstat` totals.
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesDeleted int
	LinesTotal   int
}

// Assessment is the Risk Assessor's output.
type Assessment struct {
	Level             Level    `json:"level"`
	Score             int      `json:"score"`
	Factors           []string `json:"factors"`
	AutoMergeEligible bool     `json:"auto_merge_eligible"`
}

// Assess scores a run deterministically from its error type, the scope of
// the files it touched, the diff stats, and whether validation ran.
func Assess(errorType classifier.ErrorType, scope Scope, stats DiffStats, validation ValidationOutcome) Assessment {
	var factors []string
	score := 0

	switch errorType {
	case classifier.ErrorFrontendSelector:
		score += 1
		factors = append(factors, "error_type:frontend-selector:+1")
	case classifier.ErrorFrontendTiming:
		score += 2
		factors = append(factors, "error_type:frontend-timing:+2")
	default:
		score += 5
		factors = append(factors, "error_type:other:+5")
	}

	switch scope {
	case ScopeTestOnly:
		factors = append(factors, "scope:test-only:+0")
	case ScopeBackend:
		score += 3
		factors = append(factors, "scope:backend:+3")
	case ScopeInfrastructure:
		score += 10
		factors = append(factors, "scope:infrastructure:+10")
	}

	switch {
	case stats.FilesChanged == 0:
		factors = append(factors, "size:no_changes:+0")
	case stats.FilesChanged <= 2 && stats.LinesTotal <= 50:
		score += 1
		factors = append(factors, "size:small:+1")
	case stats.FilesChanged <= 4 && stats.LinesTotal <= 150:
		score += 2
		factors = append(factors, "size:medium:+2")
	default:
		score += 5
		factors = append(factors, "size:large:+5")
	}

	switch validation {
	case ValidationOK:
		score -= 2
		factors = append(factors, "validation:ok:-2")
	case ValidationFailed:
		score += 3
		factors = append(factors, "validation:failed:+3")
	case ValidationNotAttempted:
		factors = append(factors, "validation:not_attempted:+0")
	}

	level := levelFor(score)

	autoMerge := level == LevelLow &&
		scope == ScopeTestOnly &&
		stats.FilesChanged <= 3 &&
		stats.LinesTotal <= 100 &&
		(validation == ValidationOK || validation == ValidationNotAttempted)

	if autoMerge {
		factors = append(factors, "auto_merge:eligible")
	} else {
		factors = append(factors, "auto_merge:"+ineligibleReason(level, scope, stats, validation))
	}

	return Assessment{Level: level, Score: score, Factors: factors, AutoMergeEligible: autoMerge}
}

func levelFor(score int) Level {
	switch {
	case score <= 2:
		return LevelLow
	case score <= 5:
		return LevelMedium
	case score <= 10:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ineligibleReason names every failing auto-merge condition, comma-joined,
// for the factors list's rationale entry.
func ineligibleReason(level Level, scope Scope, stats DiffStats, validation ValidationOutcome) string {
	var reasons []string
	if level != LevelLow {
		reasons = append(reasons, "level")
	}
	if scope != ScopeTestOnly {
		reasons = append(reasons, "scope")
	}
	if stats.FilesChanged > 3 {
		reasons = append(reasons, "files_changed")
	}
	if stats.LinesTotal > 100 {
		reasons = append(reasons, "lines_total")
	}
	if validation == ValidationFailed {
		reasons = append(reasons, "validation")
	}
	return "ineligible(" + strings.Join(reasons, ",") + ")"
}

// ScopeFromPaths classifies a set of changed file paths into the coarsest
// Scope they fall under: any path under .github/ or ending in .json, .yml or
// .yaml makes the whole change infrastructure-scoped; any other path outside
// tests/ makes it backend-scoped; otherwise it is test-only.
func ScopeFromPaths(paths []string) Scope {
	scope := ScopeTestOnly
	for _, p := range paths {
		switch {
		case isInfraPath(p):
			return ScopeInfrastructure
		case !strings.HasPrefix(p, "tests/"):
			scope = ScopeBackend
		}
	}
	return scope
}

func isInfraPath(p string) bool {
	if strings.HasPrefix(p, ".github/") {
		return true
	}
	switch {
	case strings.HasSuffix(p, ".json"), strings.HasSuffix(p, ".yml"), strings.HasSuffix(p, ".yaml"):
		return true
	}
	return false
}
