// Package prcreator implements the PR Creator's input contract: it reads a
// Fix-Agent metadata record and decides whether a branch is worth staging,
// without ever calling a git-hosting API itself. That last step — the
// wt.CreatePR-equivalent `gh pr create` invocation — is deliberately left to
// an external collaborator, matching the non-goal of never making an
// irreversible repository change from inside this pipeline.
package prcreator

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/praxi/ci-triage/internal/fixagent"
)

// Decision is pr-decision-<run_id>.json's full content.
type Decision struct {
	RunID             string `json:"run_id"`
	Branch            string `json:"branch"`
	Title             string `json:"title"`
	Body              string `json:"body"`
	AutoMergeEligible bool   `json:"auto_merge_eligible"`
	Staged            bool   `json:"staged"`
	Reason            string `json:"reason"`
}

// LoadMetadata reads a metadata-<run_id>.json file produced by the Fix-Agent.
func LoadMetadata(path string) (*fixagent.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var m fixagent.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// Decide turns a Fix-Agent metadata record into a staging decision. A
// branch is staged only when the patch made changes, the record is not
// flagged needs_manual_review, and its status is "ok" (a guardrail trip or
// any other driver error leaves a non-ok status).
func Decide(m *fixagent.Metadata) Decision {
	d := Decision{
		RunID:             m.RunID,
		Branch:            m.Suggestions.BranchName,
		Title:             m.Suggestions.PRTitle,
		Body:              m.Suggestions.PRBody,
		AutoMergeEligible: m.RiskAssessment.AutoMergeEligible,
	}

	switch {
	case len(m.ChangeSummary.ChangedFiles) == 0:
		d.Staged = false
		d.Reason = "no files were changed; nothing to stage"
	case m.NeedsManualReview:
		d.Staged = false
		d.Reason = "needs_manual_review is set; holding for human triage"
	case m.Status != "ok":
		d.Staged = false
		d.Reason = "fix-agent run did not complete cleanly (status=" + m.Status + ")"
	default:
		d.Staged = true
		d.Reason = "changes present, validation did not fail, no manual review required"
	}

	return d
}

// WriteDecision writes a Decision as pretty-printed JSON to path.
func WriteDecision(path string, d Decision) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	return nil
}
