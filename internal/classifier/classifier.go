// Package classifier implements the deterministic, first-match-wins CI
// failure classification rule engine.
package classifier

import (
	"regexp"
	"strings"
)

// ErrorType names the failure class a CI run is assigned.
type ErrorType string

const (
	ErrorFrontendSelector ErrorType = "frontend-selector"
	ErrorFrontendTiming   ErrorType = "frontend-timing"
	ErrorBackend500       ErrorType = "backend-500"
	ErrorBackendMigration ErrorType = "backend-migration"
	ErrorAuthSession      ErrorType = "auth/session"
	ErrorInfraNetwork     ErrorType = "infra/network"
	ErrorBackendException ErrorType = "backend-exception"
	ErrorUnknown          ErrorType = "unknown"
	ErrorMissingLogs      ErrorType = "missing_logs"
)

// Confidence names how certain the classifier is in its error_type pick.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Classification is the rule-engine's output for one CI run's logs.
type Classification struct {
	ErrorType    ErrorType  `json:"error_type"`
	Confidence   Confidence `json:"confidence"`
	FailingTests []string   `json:"failing_tests"`
	Signals      []string   `json:"signals"`
	Summary      string     `json:"summary"`
	// SummaryDetail is an optional LLM-enriched elaboration of Summary. It
	// never participates in classification and is empty unless enrichment
	// ran successfully (see internal/enrich).
	SummaryDetail string `json:"summary_detail,omitempty"`
}

// Detection patterns. Each is scoped as narrowly as the signature it names
// so that signal tokens stay meaningful for triage.
var (
	migrationPat  = regexp.MustCompile(`(?i)django\.db\.migrations|no such table|relation ".*" does not exist|applying migrations|migration\s+\S+\s+is\s+applied`)
	tracebackPat  = regexp.MustCompile(`Traceback \(most recent call last\):`)
	backend5xxPat = regexp.MustCompile(`(?i)HTTP/1\.[01]"\s+5\d{2}|status[_ ]?code[=:]\s*5\d{2}|internal server error|\b5\d{2}\s+internal server error\b`)
	authPat       = regexp.MustCompile(`(?i)\b401\b|\b403\b|csrf|forbidden|unauthorized|invalid credentials|login failed`)
	networkPat    = regexp.MustCompile(`net::ERR_[A-Z_]+|ECONNRESET|ECONNREFUSED|ECONNABORTED|EAI_AGAIN|getaddrinfo ENOTFOUND|socket hang up|connection reset`)
	selectorPat   = regexp.MustCompile(`(?i)strict mode violation|locator\(|toHaveCount|toBeVisible`)
	timingPat     = regexp.MustCompile(`(?i)test timeout of \d+ms exceeded|timeout \d+ms exceeded|Timed out \d+ms waiting`)

	failingTestPat = regexp.MustCompile(`^\s*\d+\)\s+(.+)$`)
)

// Classify runs the deterministic, first-match-wins rule engine over a pair
// of normalized logs. Rule order is a contract (see spec §4.2): the first
// matching rule wins regardless of what else would also match.
func Classify(playwrightLog, backendLog string) Classification {
	trimmedPW := strings.TrimSpace(playwrightLog)
	trimmedBE := strings.TrimSpace(backendLog)

	failing := extractFailingTests(playwrightLog)

	switch {
	case trimmedPW == "" && trimmedBE == "":
		return Classification{
			ErrorType:    ErrorMissingLogs,
			Confidence:   ConfidenceLow,
			FailingTests: failing,
			Signals:      []string{"empty_logs"},
			Summary:      "No log content was submitted for this run.",
		}

	case migrationPat.MatchString(backendLog):
		return Classification{
			ErrorType:    ErrorBackendMigration,
			Confidence:   ConfidenceHigh,
			FailingTests: failing,
			Signals:      []string{"migration_signature"},
			Summary:      "Backend log shows a database migration or schema mismatch.",
		}

	case tracebackPat.MatchString(backendLog):
		return Classification{
			ErrorType:    ErrorBackendException,
			Confidence:   ConfidenceHigh,
			FailingTests: failing,
			Signals:      []string{"python_traceback"},
			Summary:      "Backend log shows an unhandled Python exception.",
		}

	case backend5xxPat.MatchString(backendLog):
		return Classification{
			ErrorType:    ErrorBackend500,
			Confidence:   ConfidenceMedium,
			FailingTests: failing,
			Signals:      []string{"5xx_response"},
			Summary:      "Backend log shows a 5xx server error response.",
		}

	case authPat.MatchString(playwrightLog) || authPat.MatchString(backendLog):
		return Classification{
			ErrorType:    ErrorAuthSession,
			Confidence:   ConfidenceMedium,
			FailingTests: failing,
			Signals:      []string{"auth_signature"},
			Summary:      "Logs show an authentication or session failure.",
		}

	case networkPat.MatchString(playwrightLog) || networkPat.MatchString(backendLog):
		return Classification{
			ErrorType:    ErrorInfraNetwork,
			Confidence:   ConfidenceMedium,
			FailingTests: failing,
			Signals:      []string{"network_failure"},
			Summary:      "Logs show a network-level connection failure.",
		}

	case selectorPat.MatchString(playwrightLog):
		return Classification{
			ErrorType:    ErrorFrontendSelector,
			Confidence:   ConfidenceMedium,
			FailingTests: failing,
			Signals:      []string{"selector_signature"},
			Summary:      "Playwright log shows a locator/selector resolution failure.",
		}

	case timingPat.MatchString(playwrightLog):
		return Classification{
			ErrorType:    ErrorFrontendTiming,
			Confidence:   ConfidenceMedium,
			FailingTests: failing,
			Signals:      []string{"timeout_signature"},
			Summary:      "Playwright log shows a test timeout.",
		}

	default:
		return Classification{
			ErrorType:    ErrorUnknown,
			Confidence:   ConfidenceLow,
			FailingTests: failing,
			Signals:      []string{"no_known_signature"},
			Summary:      "No recognized failure signature was found in the logs.",
		}
	}
}

// extractFailingTests scans the playwright log line-by-line for "NN)  <title>"
// markers, preserving first-occurrence order, deduplicating, and capping at 5.
func extractFailingTests(playwrightLog string) []string {
	var tests []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(playwrightLog, "\n") {
		m := failingTestPat.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		tests = append(tests, title)
		if len(tests) >= 5 {
			break
		}
	}
	return tests
}
