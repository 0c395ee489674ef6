package artifacts

import (
	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/plan"
)

// RunMetadata is the subset of a LogBundle that is worth echoing back into
// every persisted artifact, independent of log content.
type RunMetadata struct {
	RunID     string `json:"run_id"`
	JobName   string `json:"job_name"`
	Timestamp string `json:"timestamp"`
	Branch    string `json:"branch"`
	Commit    string `json:"commit"`
	Status    string `json:"status"`
}

// StorageLayout records where each per-run file landed, so a reader of
// analysis.json never has to guess a path.
type StorageLayout struct {
	PlaywrightLog string `json:"playwright_log"`
	BackendLog    string `json:"backend_log"`
	AnalysisJSON  string `json:"analysis_json"`
}

// AnalysisRecord is the full content of analysis.json.
type AnalysisRecord struct {
	ProcessedAt          string                    `json:"processed_at"`
	Run                  RunMetadata               `json:"run"`
	Classification       classifier.Classification `json:"classification"`
	SelfHealPlan         plan.SelfHealPlan         `json:"self_heal_plan"`
	FixAgentInstructions plan.FixAgentInstructions `json:"fix_agent_instructions"`
	Storage              StorageLayout             `json:"storage"`
}

// DispatchPayload is the shape shared by self-heal.json and fix-agent.json:
// run metadata, the classification, and the paths of the three per-run
// artifacts, plus whichever plan-shaped record is relevant to the recipient.
type DispatchPayload struct {
	Run            RunMetadata                `json:"run"`
	Classification classifier.Classification  `json:"classification"`
	SelfHealPlan   *plan.SelfHealPlan         `json:"self_heal_plan,omitempty"`
	Instructions   *plan.FixAgentInstructions `json:"fix_agent_instructions,omitempty"`
	Artifacts      StorageLayout              `json:"artifacts"`
}

// TriggersRecord is triggers.json: a timestamp plus boolean dispatch flags.
type TriggersRecord struct {
	Timestamp     string `json:"timestamp"`
	SelfHealFired bool   `json:"self_heal_fired"`
	FixAgentFired bool   `json:"fix_agent_fired"`
}
