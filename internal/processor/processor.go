// Package processor implements the Log Processor: persistence,
// classification, plan derivation, and dispatch for one CI run.
package processor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/praxi/ci-triage/internal/artifacts"
	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/dispatch"
	"github.com/praxi/ci-triage/internal/enrich"
	"github.com/praxi/ci-triage/internal/logbundle"
	"github.com/praxi/ci-triage/internal/plan"
)

// Handler is the Log Processor's single HTTP endpoint.
type Handler struct {
	Token      string
	Dispatcher dispatch.Dispatcher
	Enricher   *enrich.Summarizer // optional; nil disables summary_detail enrichment
	Logger     *slog.Logger
}

// New builds a Handler with the reference persist-only dispatcher.
func New(token string, logger *slog.Logger) *Handler {
	return &Handler{Token: token, Dispatcher: dispatch.PersistOnly{}, Logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
		return
	}

	if h.Token == "" {
		h.Logger.Error("processor misconfigured: DEVELOPER_AGENT_TOKEN is not set")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}
	if !bearerMatches(r.Header.Get("Authorization"), h.Token) {
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
		missing := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			missing[i] = fe.Field
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_payload", "missing": missing})
		return
	}

	result, err := h.process(r.Context(), bundle)
	if err != nil {
		h.Logger.Error("processing failed", "error", err, "run_id", bundle.RunID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "processed",
		"run_id":                 result.RunID,
		"classification":         result.Classification,
		"self_heal_plan":         result.SelfHealPlan,
		"fix_agent_instructions": result.Instructions,
		"triggers":               result.Triggers,
	})
}

// Result is everything a caller (or this package's tests) needs about one
// completed run.
type Result struct {
	RunID          string
	Classification classifier.Classification
	SelfHealPlan   plan.SelfHealPlan
	Instructions   plan.FixAgentInstructions
	Triggers       artifacts.TriggersRecord
}

// process runs the full persist -> classify -> plan -> dispatch sequence
// for one validated bundle. It has no HTTP concerns so it can be tested and
// reused (e.g. from a CLI entry point) directly.
func (h *Handler) process(ctx context.Context, bundle *logbundle.LogBundle) (*Result, error) {
	normalizedRunID := artifacts.NormalizeRunID(bundle.RunID)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	logsRoot, err := artifacts.ResolveLogsRoot(cwd)
	if err != nil {
		return nil, err
	}
	store := artifacts.New(logsRoot, normalizedRunID)

	pwLog := classifier.NormalizeLog(bundle.PlaywrightLog)
	beLog := classifier.NormalizeLog(bundle.BackendLog)

	pwPath, err := store.WriteText("playwright.log", pwLog)
	if err != nil {
		return nil, err
	}
	bePath, err := store.WriteText("backend.log", beLog)
	if err != nil {
		return nil, err
	}

	classification := classifier.Classify(pwLog, beLog)
	if h.Enricher != nil {
		if detail, err := h.Enricher.Summarize(ctx, classification, pwLog, beLog); err != nil {
			h.Logger.Warn("enrichment skipped", "error", err, "run_id", bundle.RunID)
		} else {
			classification.SummaryDetail = detail
		}
	}
	selfHealPlan := plan.BuildSelfHealPlan(classification.ErrorType)
	instructions := plan.BuildFixAgentInstructions(classification, pwLog, beLog)

	runMeta := artifacts.RunMetadata{
		RunID:     normalizedRunID,
		JobName:   bundle.JobName,
		Timestamp: bundle.Timestamp,
		Branch:    bundle.Branch,
		Commit:    bundle.Commit,
		Status:    bundle.Status,
	}
	layout := artifacts.StorageLayout{
		PlaywrightLog: pwPath,
		BackendLog:    bePath,
		AnalysisJSON:  filepath.Join(store.Dir(), "analysis.json"),
	}

	record := artifacts.AnalysisRecord{
		ProcessedAt:          artifacts.NowUTC(),
		Run:                  runMeta,
		Classification:       classification,
		SelfHealPlan:         selfHealPlan,
		FixAgentInstructions: instructions,
		Storage:              layout,
	}
	analysisPath, err := store.WriteJSON("analysis.json", &record)
	if err != nil {
		return nil, err
	}
	record.Storage.AnalysisJSON = analysisPath

	triggers := artifacts.TriggersRecord{Timestamp: artifacts.NowUTC()}
	if strings.EqualFold(bundle.Status, "failed") {
		if err := h.Dispatcher.Dispatch(store, record); err != nil {
			h.Logger.Warn("dispatch failed", "error", err, "run_id", normalizedRunID)
		} else {
			triggers.SelfHealFired = true
			triggers.FixAgentFired = true
		}
		if _, err := store.WriteJSON("triggers.json", &triggers); err != nil {
			return nil, err
		}
	}

	return &Result{
		RunID:          normalizedRunID,
		Classification: classification,
		SelfHealPlan:   selfHealPlan,
		Instructions:   instructions,
		Triggers:       triggers,
	}, nil
}

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
