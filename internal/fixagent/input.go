// Package fixagent orchestrates the Fix-Agent: input preparation, the
// patch engine, optional validation, and artifact writing. It never
// throws — every failure path still produces a (patch, metadata) pair.
package fixagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/praxi/ci-triage/internal/artifacts"
	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/logbundle"
	"github.com/praxi/ci-triage/internal/plan"
)

var specPathPat = regexp.MustCompile(`tests/e2e/[\w./-]+\.spec\.(ts|js)`)

// Input is the prepared FixAgentInput: everything the driver needs to run
// without further network or filesystem discovery.
type Input struct {
	RunID              string                     `json:"run_id"`
	SpecPaths          []string                   `json:"spec_paths"`
	Classification     *classifier.Classification `json:"classification,omitempty"`
	Instructions       *plan.FixAgentInstructions `json:"fix_agent_instructions,omitempty"`
	PlaywrightLogBytes int                        `json:"playwright_log_bytes"`
	BackendLogBytes    int                        `json:"backend_log_bytes"`
	Run                artifacts.RunMetadata      `json:"run"`
	UpstreamAttempted  bool                       `json:"upstream_attempted"`
	UpstreamError      string                     `json:"upstream_error,omitempty"`
}

// PrepareInput extracts spec paths, best-effort POSTs the bundle to the
// Ingest Gateway, and records whatever classification comes back. If the
// gateway token or URL is absent, preparation proceeds with an empty
// analysis rather than failing.
func PrepareInput(ctx context.Context, bundle logbundle.LogBundle, gatewayURL, agentToken string, logger *slog.Logger) Input {
	matches := specPathPat.FindAllString(bundle.PlaywrightLog, -1)
	specPaths := uniqueCapped(matches, 3)

	input := Input{
		RunID:              bundle.RunID,
		SpecPaths:          specPaths,
		PlaywrightLogBytes: len(bundle.PlaywrightLog),
		BackendLogBytes:    len(bundle.BackendLog),
		Run: artifacts.RunMetadata{
			RunID:     bundle.RunID,
			JobName:   bundle.JobName,
			Timestamp: bundle.Timestamp,
			Branch:    bundle.Branch,
			Commit:    bundle.Commit,
			Status:    bundle.Status,
		},
	}

	if gatewayURL == "" || agentToken == "" {
		logger.Warn("fix-agent input preparation: no gateway configured, proceeding with empty analysis")
		return input
	}

	input.UpstreamAttempted = true
	classification, instructions, err := postToGateway(ctx, bundle, gatewayURL, agentToken)
	if err != nil {
		input.UpstreamError = err.Error()
		logger.Warn("fix-agent input preparation: upstream call failed", "error", err)
		return input
	}
	input.Classification = classification
	input.Instructions = instructions
	return input
}

func postToGateway(ctx context.Context, bundle logbundle.LogBundle, gatewayURL, agentToken string) (*classifier.Classification, *plan.FixAgentInstructions, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal bundle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+agentToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var body struct {
		Upstream struct {
			Classification       classifier.Classification `json:"classification"`
			FixAgentInstructions plan.FixAgentInstructions  `json:"fix_agent_instructions"`
		} `json:"upstream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return &body.Upstream.Classification, &body.Upstream.FixAgentInstructions, nil
}

func uniqueCapped(items []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out
}
