// Package dispatch defines the pluggable fan-out step that fires after a
// failed run has been classified: self-heal.json and fix-agent.json.
package dispatch

import "github.com/praxi/ci-triage/internal/artifacts"

// Dispatcher fans a completed analysis out to downstream consumers. The
// reference implementation (PersistOnly) only writes files; a queue- or
// webhook-backed implementation can satisfy the same interface without
// changing the processor.
type Dispatcher interface {
	Dispatch(store *artifacts.Store, record artifacts.AnalysisRecord) error
}

// PersistOnly writes self-heal.json and fix-agent.json as the two dispatch
// payloads. It performs no network I/O and never fails except on disk error.
type PersistOnly struct{}

func (PersistOnly) Dispatch(store *artifacts.Store, record artifacts.AnalysisRecord) error {
	selfHeal := artifacts.DispatchPayload{
		Run:            record.Run,
		Classification: record.Classification,
		SelfHealPlan:   &record.SelfHealPlan,
		Artifacts:      record.Storage,
	}
	if _, err := store.WriteJSON("self-heal.json", &selfHeal); err != nil {
		return err
	}

	fixAgent := artifacts.DispatchPayload{
		Run:            record.Run,
		Classification: record.Classification,
		Instructions:   &record.FixAgentInstructions,
		Artifacts:      record.Storage,
	}
	if _, err := store.WriteJSON("fix-agent.json", &fixAgent); err != nil {
		return err
	}

	return nil
}
