package logbundle

import "testing"

func validBody() string {
	return `{
		"playwright_log": "1)  login works\nError: expected 200, received 401",
		"backend_log": "server up",
		"run_id": "run-123",
		"job_name": "e2e",
		"timestamp": "2025-01-01T00:00:00Z",
		"branch": "main",
		"commit": "abc",
		"status": "failed"
	}`
}

func TestParse_ValidBundle(t *testing.T) {
	b, errs, err := Parse([]byte(validBody()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("Parse() field errors = %v", errs)
	}
	if b.RunID != "run-123" {
		t.Errorf("RunID = %q", b.RunID)
	}
}

func TestParse_NumericRunID(t *testing.T) {
	b, errs, err := Parse([]byte(`{
		"playwright_log": "x", "backend_log": "y", "run_id": 42,
		"job_name": "e2e", "timestamp": "t", "branch": "main", "commit": "abc", "status": "failed"
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("Parse() field errors = %v", errs)
	}
	if b.RunID != "42" {
		t.Errorf("RunID = %q, want \"42\"", b.RunID)
	}
}

func TestParse_MalformedJSONIsADecodeError(t *testing.T) {
	_, _, err := Parse([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected a decode error for malformed JSON")
	}
}

func TestParse_MissingFieldsAreListed(t *testing.T) {
	_, errs, err := Parse([]byte(`{"run_id":"1"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("expected field errors for the missing fields")
	}
	fields := map[string]bool{}
	for _, fe := range errs {
		fields[fe.Field] = true
	}
	for _, want := range []string{"playwright_log", "backend_log", "job_name", "timestamp", "branch", "commit", "status"} {
		if !fields[want] {
			t.Errorf("missing field error for %q", want)
		}
	}
}

func TestParse_WrongTypedFieldIsAFieldErrorNotADecodeFailure(t *testing.T) {
	_, errs, err := Parse([]byte(`{
		"playwright_log": "x", "backend_log": "y", "run_id": "1",
		"job_name": 123, "timestamp": "t", "branch": "main", "commit": "abc", "status": "failed"
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v, want a field-level error instead", err)
	}
	found := false
	for _, fe := range errs {
		if fe.Field == "job_name" {
			found = true
			if fe.Reason != "must be a string" {
				t.Errorf("job_name reason = %q", fe.Reason)
			}
		}
	}
	if !found {
		t.Fatal("expected a job_name field error")
	}
}

func TestParse_EmptyRunIDIsAFieldError(t *testing.T) {
	_, errs, err := Parse([]byte(`{
		"playwright_log": "x", "backend_log": "y", "run_id": "",
		"job_name": "e2e", "timestamp": "t", "branch": "main", "commit": "abc", "status": "failed"
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	found := false
	for _, fe := range errs {
		if fe.Field == "run_id" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a run_id field error")
	}
}
