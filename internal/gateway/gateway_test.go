package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validBundleJSON(runID string) []byte {
	b, _ := json.Marshal(map[string]string{
		"playwright_log": "ok",
		"backend_log":     "ok",
		"run_id":          runID,
		"job_name":        "e2e",
		"timestamp":       "2025-01-01T00:00:00Z",
		"branch":          "main",
		"commit":          "abc",
		"status":          "passed",
	})
	return b
}

func TestHandler_RejectsNonPost(t *testing.T) {
	h := New("secret", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/ci/logs", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow header = %q, want POST", rec.Header().Get("Allow"))
	}
}

func TestHandler_MissingAuth(t *testing.T) {
	h := New("secret", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandler_WrongBearer(t *testing.T) {
	h := New("secret", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandler_MisconfiguredSecret(t *testing.T) {
	h := New("", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandler_MalformedJSON(t *testing.T) {
	h := New("secret", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader("not json"))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandler_MissingFields(t *testing.T) {
	h := New("secret", "http://upstream", "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader(`{"playwright_log":"ok"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["error"] != "invalid_payload" {
		t.Errorf("error = %v, want invalid_payload", body["error"])
	}
	if body["details"] == nil {
		t.Error("expected a details list")
	}
}

func TestHandler_ForwardsOnSuccess(t *testing.T) {
	var gotAuth, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"processed","run_id":"42"}`))
	}))
	defer upstream.Close()

	h := New("secret", upstream.URL, "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader(string(validBundleJSON("42"))))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if gotAuth != "Bearer up-secret" {
		t.Errorf("upstream auth = %q", gotAuth)
	}
	if gotPath != "/process-logs" {
		t.Errorf("upstream path = %q, want /process-logs", gotPath)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["status"] != "received" {
		t.Errorf("status field = %v, want received", body["status"])
	}
}

func TestHandler_UpstreamNon2xxBecomes502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer upstream.Close()

	h := New("secret", upstream.URL, "up-secret", testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/ci/logs", strings.NewReader(string(validBundleJSON("42"))))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if strings.Contains(rec.Body.String(), "up-secret") {
		t.Error("response must never leak the upstream secret")
	}
}

func TestUpstreamURL_AppendsSuffix(t *testing.T) {
	if got := upstreamURL("http://host:8000"); got != "http://host:8000/process-logs" {
		t.Errorf("upstreamURL() = %q", got)
	}
	if got := upstreamURL("http://host:8000/"); got != "http://host:8000/process-logs" {
		t.Errorf("upstreamURL() = %q", got)
	}
	if got := upstreamURL("http://host:8000/process-logs"); got != "http://host:8000/process-logs" {
		t.Errorf("upstreamURL() = %q", got)
	}
}
