package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/praxi/ci-triage/internal/config"
	"github.com/praxi/ci-triage/internal/fixagent"
	"github.com/praxi/ci-triage/internal/subprocess"
	"github.com/praxi/ci-triage/internal/tracker"
)

var (
	applyInput   string
	applyOutDir  string
	applyRepo    string
	applyTracker string
)

var applyAndValidateCmd = &cobra.Command{
	Use:   "apply-and-validate",
	Short: "Apply a scoped patch from a prepared input and optionally revalidate it",
	Long: `apply-and-validate reads an Input record, dispatches it to the
error-type-specific transform, enforces the file/line guardrails, optionally
reruns the affected Playwright specs, and writes the resulting patch and
metadata. It exits 0 whenever it produces artifacts, including every
in-domain failure (guardrail trip, validation failure, missing
classification); a non-zero exit means it could not even start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		data, err := os.ReadFile(applyInput)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		var in fixagent.Input
		if err := json.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("parse input: %w", err)
		}

		repoDir := applyRepo
		if repoDir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve repo dir: %w", err)
			}
			repoDir = cwd
		}

		guardrails, err := config.LoadGuardrailConfig(repoDir)
		if err != nil {
			return fmt.Errorf("load guardrail config: %w", err)
		}

		if err := os.MkdirAll(applyOutDir, 0o755); err != nil {
			return fmt.Errorf("create out-dir: %w", err)
		}

		// From here on, in.RunID is known and the out-dir exists: any failure,
		// including a panic out of the driver, is caught and turned into an
		// error-metadata artifact rather than a non-zero exit. Only a failure
		// to even start (above this point) is an unrecoverable startup error.
		runApplyAndValidate(cmd, logger, in, repoDir, guardrails)
		return nil
	},
}

// runApplyAndValidate drives one Driver.Run and writes its artifacts. It
// recovers from any panic so that an unexpected failure deep in the driver
// still produces a metadata record instead of crashing the process, matching
// this command's always-exit-0, always-write-artifacts contract.
func runApplyAndValidate(cmd *cobra.Command, logger *slog.Logger, in fixagent.Input, repoDir string, guardrails config.GuardrailConfig) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("apply-and-validate recovered from a panic", "error", r, "run_id", in.RunID)
			writeRecoveredMetadata(in, fmt.Sprintf("recovered from panic: %v", r))
		}
	}()

	driver := &fixagent.Driver{
		Guardrails:       fixagent.Guardrails{MaxFiles: guardrails.MaxFiles, MaxLines: guardrails.MaxLines},
		Runner:           subprocess.DefaultRunner{},
		PlaywrightRunner: subprocess.NewDefaultPlaywrightRunner(),
		RepoDir:          repoDir,
		Logger:           logger,
	}

	out := driver.Run(cmd.Context(), in)

	patchPath := filepath.Join(applyOutDir, fmt.Sprintf("patch-%s.diff", in.RunID))
	if err := os.WriteFile(patchPath, []byte(out.Patch), 0o644); err != nil {
		logger.Error("write patch failed", "error", err, "run_id", in.RunID)
		writeRecoveredMetadata(in, fmt.Sprintf("write patch failed: %v", err))
		return
	}

	metadataPath := filepath.Join(applyOutDir, fmt.Sprintf("metadata-%s.json", in.RunID))
	metaBytes, err := json.MarshalIndent(out.Metadata, "", "  ")
	if err != nil {
		logger.Error("marshal metadata failed", "error", err, "run_id", in.RunID)
		writeRecoveredMetadata(in, fmt.Sprintf("marshal metadata failed: %v", err))
		return
	}
	if err := os.WriteFile(metadataPath, metaBytes, 0o644); err != nil {
		logger.Error("write metadata failed", "error", err, "run_id", in.RunID)
		return
	}

	logger.Info("apply-and-validate complete",
		"run_id", in.RunID,
		"status", out.Metadata.Status,
		"needs_manual_review", out.Metadata.NeedsManualReview,
		"risk_level", out.Metadata.RiskAssessment.Level,
	)

	if err := recordRun(in, out); err != nil {
		logger.Warn("tracker update skipped", "error", err, "run_id", in.RunID)
	}
}

// writeRecoveredMetadata writes a minimal metadata-<run-id>.json for a run
// that never got a driver Output, so a downstream create-pr still has a
// well-formed, needs-manual-review record to read instead of a missing file.
func writeRecoveredMetadata(in fixagent.Input, reason string) {
	m := fixagent.Metadata{
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
		RunID:             in.RunID,
		NeedsManualReview: true,
		Errors:            []string{reason},
		Status:            "error",
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return
	}
	metadataPath := filepath.Join(applyOutDir, fmt.Sprintf("metadata-%s.json", in.RunID))
	_ = os.WriteFile(metadataPath, data, 0o644)
}

func init() {
	rootCmd.AddCommand(applyAndValidateCmd)
	applyAndValidateCmd.Flags().StringVar(&applyInput, "input", "", "Path to the Input record produced by prepare-input (required)")
	applyAndValidateCmd.Flags().StringVar(&applyOutDir, "out-dir", "fix-agent", "Directory to write the patch and metadata into")
	applyAndValidateCmd.Flags().StringVar(&applyRepo, "repo-dir", "", "Repository working tree to diff and validate against (default: current directory)")
	applyAndValidateCmd.Flags().StringVar(&applyTracker, "tracker", "", "Path to the run-history tracker file (default: <out-dir>/tracker.json)")
	applyAndValidateCmd.MarkFlagRequired("input")
}

// recordRun upserts this run's outcome into the tracker. It is pure
// bookkeeping: a failure here is logged and never changes apply-and-validate's
// exit code or artifacts.
func recordRun(in fixagent.Input, out fixagent.Output) error {
	path := applyTracker
	if path == "" {
		path = filepath.Join(applyOutDir, "tracker.json")
	}

	t, err := tracker.New(path)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}

	rec := tracker.RunRecord{
		RunID:             in.RunID,
		JobName:           in.Run.JobName,
		Branch:            in.Run.Branch,
		ErrorType:         string(out.Metadata.ErrorType),
		Dispatched:        in.UpstreamAttempted,
		FixAgentRan:       true,
		RiskLevel:         string(out.Metadata.RiskAssessment.Level),
		NeedsManualReview: out.Metadata.NeedsManualReview,
	}
	if in.Classification != nil {
		rec.Confidence = string(in.Classification.Confidence)
	}

	t.Upsert(rec, time.Now().UTC())
	if err := t.Save(); err != nil {
		return fmt.Errorf("save tracker: %w", err)
	}
	return nil
}
