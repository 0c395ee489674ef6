// Package plan derives the SelfHealPlan and FixAgentInstructions records
// from a classification, deterministically and without any I/O.
package plan

import (
	"regexp"
	"strings"

	"github.com/praxi/ci-triage/internal/classifier"
)

const (
	maxSnippetChars   = 6000
	maxRootCauseChars = 2000
)

// SelfHealPlan is human-readable remediation guidance tied to a classification.
type SelfHealPlan struct {
	WhatToInspect []string `json:"what_to_inspect"`
	WhatToChange  []string `json:"what_to_change"`
	TestsToRerun  []string `json:"tests_to_rerun"`
}

// LogSnippets carries the capped excerpts used to ground a fix attempt.
type LogSnippets struct {
	Playwright string `json:"playwright"`
	Backend    string `json:"backend"`
}

// FixAgentInstructions is the structured hint set consumed by the patch engine.
type FixAgentInstructions struct {
	SuspectedPaths        []string    `json:"suspected_paths"`
	FailingTests          []string    `json:"failing_tests"`
	SuspectedRootCause    string      `json:"suspected_root_cause"`
	SuggestedFixDirection string      `json:"suggested_fix_direction"`
	KeyLogSnippets        LogSnippets `json:"key_log_snippets"`
}

// orchestratingWorkflowPaths are always appended to suspected_paths, since the
// workflow that produced the run is itself always a plausible edit target.
var orchestratingWorkflowPaths = []string{".github/workflows/e2e.yml"}

// BuildSelfHealPlan derives the remediation plan from an error_type alone.
func BuildSelfHealPlan(errorType classifier.ErrorType) SelfHealPlan {
	rerun := []string{"full Playwright suite"}

	switch errorType {
	case classifier.ErrorFrontendSelector:
		return SelfHealPlan{
			WhatToInspect: []string{"the failing spec's locator usage", "recent markup changes to the targeted component"},
			WhatToChange:  []string{"disambiguate the locator (scope it or use .first())"},
			TestsToRerun:  rerun,
		}
	case classifier.ErrorFrontendTiming:
		return SelfHealPlan{
			WhatToInspect: []string{"the failing spec's wait/assertion timing", "backend response latency during the run"},
			WhatToChange:  []string{"raise the test's timeout or add an explicit wait condition"},
			TestsToRerun:  rerun,
		}
	case classifier.ErrorBackendMigration:
		return SelfHealPlan{
			WhatToInspect: []string{"pending Django migrations", "migration history divergence between branches"},
			WhatToChange:  []string{"apply or squash the missing migration"},
			TestsToRerun:  append(rerun, "run: python manage.py migrate --check"),
		}
	case classifier.ErrorBackendException:
		return SelfHealPlan{
			WhatToInspect: []string{"the backend traceback and the view/serializer it originates from"},
			WhatToChange:  []string{"handle the unhandled exception or fix the underlying data assumption"},
			TestsToRerun:  rerun,
		}
	case classifier.ErrorBackend500:
		return SelfHealPlan{
			WhatToInspect: []string{"backend logs around the failing request", "recently deployed backend changes"},
			WhatToChange:  []string{"fix the endpoint raising the 5xx"},
			TestsToRerun:  rerun,
		}
	case classifier.ErrorAuthSession:
		return SelfHealPlan{
			WhatToInspect: []string{"session/auth configuration", "recently rotated secrets or cookie settings"},
			WhatToChange:  []string{"restore valid auth/session handling"},
			TestsToRerun:  append(rerun, "run: the auth validator"),
		}
	case classifier.ErrorInfraNetwork:
		return SelfHealPlan{
			WhatToInspect: []string{"network connectivity between the test runner and the app under test", "DNS/service availability in the CI environment"},
			WhatToChange:  []string{"restore connectivity or add a retry at the infra layer"},
			TestsToRerun:  rerun,
		}
	case classifier.ErrorMissingLogs:
		return SelfHealPlan{
			WhatToInspect: []string{"why no log content was submitted for this run"},
			WhatToChange:  []string{"fix the CI step that uploads logs"},
			TestsToRerun:  rerun,
		}
	default:
		return SelfHealPlan{
			WhatToInspect: []string{"the raw logs for this run; no known signature matched"},
			WhatToChange:  []string{"triage manually"},
			TestsToRerun:  rerun,
		}
	}
}

var frontendSeedPaths = []string{"tests/e2e/", "frontend/src/pages/", "playwright.config.ts"}
var backendSeedPaths = []string{"django/", "praxi_backend/"}

// BuildFixAgentInstructions derives the patch-engine hints from a
// classification and the raw (normalized) logs.
func BuildFixAgentInstructions(c classifier.Classification, playwrightLog, backendLog string) FixAgentInstructions {
	var seeds []string
	if strings.HasPrefix(string(c.ErrorType), "frontend-") {
		seeds = frontendSeedPaths
	} else if c.ErrorType == classifier.ErrorBackendMigration || c.ErrorType == classifier.ErrorBackendException ||
		c.ErrorType == classifier.ErrorBackend500 || c.ErrorType == classifier.ErrorAuthSession {
		seeds = backendSeedPaths
	}

	paths := dedupAppend(nil, seeds...)
	paths = dedupAppend(paths, orchestratingWorkflowPaths...)

	return FixAgentInstructions{
		SuspectedPaths:        paths,
		FailingTests:          c.FailingTests,
		SuspectedRootCause:    capString(c.Summary, maxRootCauseChars),
		SuggestedFixDirection: suggestedDirection(c.ErrorType),
		KeyLogSnippets: LogSnippets{
			Playwright: capString(playwrightSnippet(playwrightLog), maxSnippetChars),
			Backend:    capString(backendSnippet(backendLog), maxSnippetChars),
		},
	}
}

func suggestedDirection(errorType classifier.ErrorType) string {
	switch errorType {
	case classifier.ErrorFrontendSelector:
		return "Scope the ambiguous locator or append .first() to resolve a single element."
	case classifier.ErrorFrontendTiming:
		return "Increase the test timeout or wait on a more specific condition before asserting."
	case classifier.ErrorBackendMigration:
		return "Generate and apply the missing migration; reconcile migration history across branches."
	case classifier.ErrorBackendException:
		return "Guard the code path raising the exception against the observed input."
	case classifier.ErrorBackend500:
		return "Fix the handler returning a 5xx for the affected request."
	case classifier.ErrorAuthSession:
		return "Restore correct authentication/session handling for the affected flow."
	case classifier.ErrorInfraNetwork:
		return "Restore network connectivity between the test runner and the application under test."
	default:
		return "Manual triage required; no deterministic fix direction applies."
	}
}

func dedupAppend(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[d] = true
	}
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		dst = append(dst, it)
	}
	return dst
}

func capString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var (
	errorLinePat      = regexp.MustCompile(`(?i)^\s*Error:.*$`)
	timeoutLinePat    = regexp.MustCompile(`(?i).*timeout.*exceeded.*$`)
	navigationLinePat = regexp.MustCompile(`(?i).*page\.(goto|click|fill|waitFor).*$`)

	tracebackWindowPat = regexp.MustCompile(`(?s)Traceback \(most recent call last\):.*`)
	backend5xxLinePat  = regexp.MustCompile(`(?im)^.*5\d{2}.*$`)
	dbErrorLinePat     = regexp.MustCompile(`(?im)^.*(no such table|relation .* does not exist|IntegrityError|OperationalError).*$`)
)

// playwrightSnippet picks the first error/timeout/navigation signal line in
// the log, falling back to the log's tail if no signal line is found.
func playwrightSnippet(log string) string {
	for _, line := range strings.Split(log, "\n") {
		if errorLinePat.MatchString(line) || timeoutLinePat.MatchString(line) || navigationLinePat.MatchString(line) {
			return line
		}
	}
	return tail(log, maxSnippetChars)
}

// backendSnippet prefers a traceback window, then a 5xx line, then a
// DB-error line, falling back to the log's tail.
func backendSnippet(log string) string {
	if m := tracebackWindowPat.FindString(log); m != "" {
		return m
	}
	if m := backend5xxLinePat.FindString(log); m != "" {
		return m
	}
	if m := dbErrorLinePat.FindString(log); m != "" {
		return m
	}
	return tail(log, maxSnippetChars)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
