// Package gateway implements the Ingest Gateway: the authenticated,
// forwarding-only front door that CI runs POST their log bundles to.
package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/praxi/ci-triage/internal/logbundle"
)

const forwardTimeout = 15 * time.Second

// Handler is the Ingest Gateway's single HTTP endpoint.
type Handler struct {
	AgentToken          string
	DeveloperAgentURL   string
	DeveloperAgentToken string
	Client              *http.Client
	Logger              *slog.Logger
}

// New builds a Handler with a default HTTP client.
func New(agentToken, upstreamURL, upstreamToken string, logger *slog.Logger) *Handler {
	return &Handler{
		AgentToken:          agentToken,
		DeveloperAgentURL:   upstreamURL,
		DeveloperAgentToken: upstreamToken,
		Client:              &http.Client{},
		Logger:              logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}

	if h.AgentToken == "" {
		h.Logger.Error("gateway misconfigured: AGENT_TOKEN is not set")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	if !bearerMatches(r.Header.Get("Authorization"), h.AgentToken) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	bundle, fieldErrs, parseErr := logbundle.Parse(body)
	if parseErr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_payload", "details": fieldErrs})
		return
	}

	h.forward(w, r.Context(), bundle)
}

func (h *Handler) forward(w http.ResponseWriter, ctx context.Context, bundle *logbundle.LogBundle) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	url := upstreamURL(h.DeveloperAgentURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.DeveloperAgentToken)

	resp, err := h.Client.Do(req)
	if err != nil {
		h.Logger.Warn("upstream forward failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_failed", "message": "upstream request failed"})
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           "upstream_failed",
			"upstream_status": resp.StatusCode,
			"upstream_body":   string(respBody),
		})
		return
	}

	var upstream any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &upstream); err != nil {
			upstream = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "upstream": upstream})
}

// upstreamURL applies the spec's suffix rule: use the configured URL
// directly if it already ends with /process-logs, otherwise append it
// after stripping a trailing slash.
func upstreamURL(base string) string {
	if strings.HasSuffix(base, "/process-logs") {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/process-logs"
}

// bearerMatches compares the Authorization header's bearer token against
// expected in constant time, so response timing does not leak the secret.
func bearerMatches(header, expected string) bool {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
