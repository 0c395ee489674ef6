// Package logbundle defines the LogBundle payload shared by the ingest
// gateway, log processor, and fix-agent input preparation stage.
package logbundle

import (
	"encoding/json"
	"fmt"
)

// LogBundle is the raw input submitted by a CI run.
type LogBundle struct {
	PlaywrightLog string `json:"playwright_log"`
	BackendLog    string `json:"backend_log"`
	RunID         string `json:"run_id"`
	JobName       string `json:"job_name"`
	Timestamp     string `json:"timestamp"`
	Branch        string `json:"branch"`
	Commit        string `json:"commit"`
	Status        string `json:"status"`
}

// raw mirrors LogBundle but decodes every field as json.RawMessage, so a
// single wrong-typed field (e.g. a number where a string is expected)
// surfaces as one field-level error instead of failing the whole decode.
type raw struct {
	PlaywrightLog json.RawMessage `json:"playwright_log"`
	BackendLog    json.RawMessage `json:"backend_log"`
	RunID         json.RawMessage `json:"run_id"`
	JobName       json.RawMessage `json:"job_name"`
	Timestamp     json.RawMessage `json:"timestamp"`
	Branch        json.RawMessage `json:"branch"`
	Commit        json.RawMessage `json:"commit"`
	Status        json.RawMessage `json:"status"`
}

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Parse decodes and validates a LogBundle from raw JSON bytes.
//
// It returns (bundle, nil, nil) on success, (nil, nil, err) if the body is
// not valid JSON, and (nil, errs, nil) if the JSON is well-formed but fails
// field validation.
func Parse(body []byte) (*LogBundle, []FieldError, error) {
	var r raw
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	var errs []FieldError
	b := &LogBundle{}

	b.PlaywrightLog, errs = requireString(r.PlaywrightLog, "playwright_log", errs)
	b.BackendLog, errs = requireString(r.BackendLog, "backend_log", errs)
	b.JobName, errs = requireString(r.JobName, "job_name", errs)
	b.Timestamp, errs = requireString(r.Timestamp, "timestamp", errs)
	b.Branch, errs = requireString(r.Branch, "branch", errs)
	b.Commit, errs = requireString(r.Commit, "commit", errs)
	b.Status, errs = requireString(r.Status, "status", errs)

	runID, runErr := parseRunID(r.RunID)
	if runErr != nil {
		errs = append(errs, FieldError{Field: "run_id", Reason: runErr.Error()})
	} else {
		b.RunID = runID
	}

	if len(errs) > 0 {
		return nil, errs, nil
	}
	return b, nil, nil
}

// requireString decodes a raw JSON field as a string, reporting a
// field-level error (not a decode failure) when it's absent, the wrong
// JSON type, or empty.
func requireString(v json.RawMessage, field string, errs []FieldError) (string, []FieldError) {
	if len(v) == 0 {
		return "", append(errs, FieldError{Field: field, Reason: "missing"})
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", append(errs, FieldError{Field: field, Reason: "must be a string"})
	}
	if s == "" {
		return "", append(errs, FieldError{Field: field, Reason: "empty"})
	}
	return s, errs
}

// parseRunID normalizes the run_id field, which may be a JSON string or a
// JSON number, to a string. An empty or absent run_id is an error; the
// directory-name normalization (falling back to "unknown") happens later,
// in the artifact store, and is distinct from this presence check.
func parseRunID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("must be a string or number")
}
