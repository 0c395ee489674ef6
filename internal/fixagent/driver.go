package fixagent

import (
	"context"
	"log/slog"
	"time"

	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/patchengine"
	"github.com/praxi/ci-triage/internal/risk"
	"github.com/praxi/ci-triage/internal/subprocess"
)

// Guardrails bounds the patch engine, sourced from internal/config.
type Guardrails struct {
	MaxFiles int
	MaxLines int
}

// Suggestions are the human-facing strings a downstream PR creator would use.
type Suggestions struct {
	BranchName    string `json:"branch_name"`
	CommitMessage string `json:"commit_message"`
	PRTitle       string `json:"pr_title"`
	PRBody        string `json:"pr_body"`
}

// ChangeSummary records what the engine attempted versus what it changed.
type ChangeSummary struct {
	AttemptedFiles []string              `json:"attempted_files"`
	ChangedFiles   []string              `json:"changed_files"`
	DiffStats      patchengine.DiffStats `json:"diff_stats"`
}

// ValidationRecord records the optional post-patch validation rerun.
type ValidationRecord struct {
	Attempted bool     `json:"attempted"`
	Command   []string `json:"command,omitempty"`
	ExitCode  int      `json:"exit_code,omitempty"`
	OK        bool     `json:"ok"`
}

// Metadata is metadata-<run_id>.json's full content.
type Metadata struct {
	GeneratedAt       string               `json:"generated_at"`
	RunID             string               `json:"run_id"`
	ErrorType         classifier.ErrorType `json:"error_type"`
	Guardrails        Guardrails           `json:"guardrails"`
	Suggestions       Suggestions          `json:"suggestions"`
	ChangeSummary     ChangeSummary        `json:"change_summary"`
	Validation        ValidationRecord     `json:"validation"`
	NeedsManualReview bool                 `json:"needs_manual_review"`
	Errors            []string             `json:"errors,omitempty"`
	RiskAssessment    risk.Assessment      `json:"risk_assessment"`
	Status            string               `json:"status"`
}

// Driver orchestrates one Fix-Agent invocation end to end. It never
// returns an error to its caller for an in-domain failure: every failure
// path is translated into a Metadata record with needs_manual_review set.
type Driver struct {
	Guardrails       Guardrails
	Runner           subprocess.Runner
	PlaywrightRunner subprocess.PlaywrightRunner
	RepoDir          string
	Logger           *slog.Logger
}

// Output is the driver's result: the patch text plus its metadata.
type Output struct {
	Patch    string
	Metadata Metadata
}

// Run executes the full apply-and-validate sequence against a prepared Input.
func (d *Driver) Run(ctx context.Context, in Input) Output {
	now := nowRFC3339()

	if in.Classification == nil || in.Instructions == nil {
		return d.emptyPatchOutput(in, now, "missing classification or fix instructions", nil)
	}

	candidates := patchengine.CandidateFiles(in.SpecPaths, in.Instructions.SuspectedPaths, d.Guardrails.MaxFiles)

	var transformResult patchengine.TransformResult
	var err error
	switch in.Classification.ErrorType {
	case classifier.ErrorFrontendTiming:
		transformResult, err = patchengine.ApplyFrontendTiming(candidates)
	case classifier.ErrorFrontendSelector:
		selectors := patchengine.ExtractStrictModeLocators(in.Instructions.KeyLogSnippets.Playwright)
		transformResult, err = patchengine.ApplyFrontendSelector(candidates, selectors)
	default:
		transformResult = patchengine.TransformResult{AttemptedFiles: candidates}
	}
	if err != nil {
		return d.emptyPatchOutput(in, now, "transform failed: "+err.Error(), transformResult.ChangedFiles)
	}

	numstatOut, err := subprocess.GitDiffNumstat(ctx, d.Runner, d.RepoDir)
	if err != nil {
		return d.emptyPatchOutput(in, now, "git diff --numstat failed: "+err.Error(), transformResult.ChangedFiles)
	}
	stats := patchengine.ParseNumstat(numstatOut)

	if stats.FilesChanged > d.Guardrails.MaxFiles || stats.LinesTotal > d.Guardrails.MaxLines {
		_ = patchengine.RevertAll(ctx, d.Runner, d.RepoDir, transformResult.ChangedFiles)
		return d.guardrailOutput(in, now, transformResult.AttemptedFiles)
	}

	validation := d.maybeValidate(ctx, in, transformResult)

	patchText := ""
	if len(transformResult.ChangedFiles) > 0 {
		patchText, err = subprocess.GitDiff(ctx, d.Runner, d.RepoDir)
		if err != nil {
			return d.emptyPatchOutput(in, now, "git diff failed: "+err.Error(), transformResult.ChangedFiles)
		}
	}

	scope := risk.ScopeFromPaths(transformResult.ChangedFiles)
	validationOutcome := risk.ValidationNotAttempted
	if validation.Attempted {
		if validation.OK {
			validationOutcome = risk.ValidationOK
		} else {
			validationOutcome = risk.ValidationFailed
		}
	}
	assessment := risk.Assess(in.Classification.ErrorType, scope, risk.DiffStats(stats), validationOutcome)

	needsManualReview := validation.Attempted && !validation.OK

	return Output{
		Patch: patchText,
		Metadata: Metadata{
			GeneratedAt: now,
			RunID:       in.RunID,
			ErrorType:   in.Classification.ErrorType,
			Guardrails:  d.Guardrails,
			Suggestions: suggestionsFor(in),
			ChangeSummary: ChangeSummary{
				AttemptedFiles: transformResult.AttemptedFiles,
				ChangedFiles:   transformResult.ChangedFiles,
				DiffStats:      stats,
			},
			Validation:        validation,
			NeedsManualReview: needsManualReview,
			RiskAssessment:    assessment,
			Status:            "ok",
		},
	}
}

func (d *Driver) maybeValidate(ctx context.Context, in Input, result patchengine.TransformResult) ValidationRecord {
	eligible := len(result.ChangedFiles) > 0 && len(in.SpecPaths) > 0 &&
		(in.Classification.ErrorType == classifier.ErrorFrontendTiming || in.Classification.ErrorType == classifier.ErrorFrontendSelector)
	if !eligible {
		return ValidationRecord{Attempted: false, OK: false}
	}

	res, err := d.PlaywrightRunner.RunSubset(ctx, in.SpecPaths, d.RepoDir)
	if err != nil {
		d.Logger.Warn("validation run failed to execute", "error", err)
		return ValidationRecord{Attempted: true, Command: validationCommand(in.SpecPaths), OK: false}
	}
	return ValidationRecord{
		Attempted: true,
		Command:   validationCommand(in.SpecPaths),
		ExitCode:  res.ExitCode,
		OK:        res.ExitCode == 0,
	}
}

func validationCommand(specs []string) []string {
	cmd := append([]string{"npx", "playwright", "test"}, specs...)
	return append(cmd, "--max-failures=1", "--workers=1")
}

func suggestionsFor(in Input) Suggestions {
	errType := "unknown"
	if in.Classification != nil {
		errType = string(in.Classification.ErrorType)
	}
	return Suggestions{
		BranchName:    "fix/" + in.RunID + "-" + sanitizeBranchSegment(errType),
		CommitMessage: "Fix " + errType + " failure from run " + in.RunID,
		PRTitle:       "Automated fix: " + errType + " (run " + in.RunID + ")",
		PRBody:        "This patch was generated by the Fix-Agent in response to CI run " + in.RunID + ".",
	}
}

func sanitizeBranchSegment(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func (d *Driver) emptyPatchOutput(in Input, now, reason string, attempted []string) Output {
	errType := classifier.ErrorType("unknown")
	if in.Classification != nil {
		errType = in.Classification.ErrorType
	}
	return Output{
		Patch: "",
		Metadata: Metadata{
			GeneratedAt:       now,
			RunID:             in.RunID,
			ErrorType:         errType,
			Guardrails:        d.Guardrails,
			Suggestions:       suggestionsFor(in),
			ChangeSummary:     ChangeSummary{AttemptedFiles: attempted},
			Validation:        ValidationRecord{Attempted: false},
			NeedsManualReview: true,
			Errors:            []string{reason},
			RiskAssessment:    risk.Assessment{Level: risk.LevelCritical, AutoMergeEligible: false, Factors: []string{"guardrail:" + reason}},
			Status:            "error",
		},
	}
}

func (d *Driver) guardrailOutput(in Input, now string, attempted []string) Output {
	return Output{
		Patch: "",
		Metadata: Metadata{
			GeneratedAt: now,
			RunID:       in.RunID,
			ErrorType:   in.Classification.ErrorType,
			Guardrails:  d.Guardrails,
			Suggestions: suggestionsFor(in),
			ChangeSummary: ChangeSummary{
				AttemptedFiles: attempted,
			},
			Validation:        ValidationRecord{Attempted: false},
			NeedsManualReview: true,
			Errors:            []string{"guardrail_triggered: diff exceeded max_files or max_lines"},
			RiskAssessment:    risk.Assessment{Level: risk.LevelCritical, AutoMergeEligible: false, Factors: []string{"guardrail:triggered"}},
			Status:            "error",
		},
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
