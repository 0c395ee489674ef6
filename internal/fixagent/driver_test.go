package fixagent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/praxi/ci-triage/internal/classifier"
	"github.com/praxi/ci-triage/internal/plan"
	"github.com/praxi/ci-triage/internal/subprocess"
)

type fakeRunner struct {
	numstatOut string
	diffOut    string
	checkedOut []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, dir string) (*subprocess.Result, error) {
	if name == "git" && len(args) > 0 && args[0] == "diff" {
		for _, a := range args {
			if a == "--numstat" {
				return &subprocess.Result{Stdout: f.numstatOut}, nil
			}
		}
		return &subprocess.Result{Stdout: f.diffOut}, nil
	}
	if name == "git" && len(args) > 0 && args[0] == "checkout" {
		f.checkedOut = append(f.checkedOut, args[len(args)-1])
	}
	return &subprocess.Result{}, nil
}

type fakePlaywrightRunner struct {
	result *subprocess.Result
}

func (f fakePlaywrightRunner) RunSubset(ctx context.Context, specs []string, dir string) (*subprocess.Result, error) {
	return f.result, nil
}

func withCwd(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestDriver_MissingAnalysisProducesEmptyPatch(t *testing.T) {
	d := &Driver{
		Guardrails:       Guardrails{MaxFiles: 4, MaxLines: 180},
		Runner:           &fakeRunner{},
		PlaywrightRunner: fakePlaywrightRunner{},
		RepoDir:          t.TempDir(),
	}

	out := d.Run(context.Background(), Input{RunID: "1"})

	if out.Patch != "" {
		t.Errorf("expected empty patch, got %q", out.Patch)
	}
	if !out.Metadata.NeedsManualReview {
		t.Error("expected needs_manual_review = true")
	}
	if out.Metadata.RiskAssessment.Level != "critical" {
		t.Errorf("risk level = %q, want critical", out.Metadata.RiskAssessment.Level)
	}
}

func TestDriver_GuardrailTriggeredRevertsAndEmptiesPatch(t *testing.T) {
	dir := t.TempDir()
	withCwd(t, dir)
	if err := os.MkdirAll("tests/e2e", 0o755); err != nil {
		t.Fatal(err)
	}
	specPath := filepath.Join("tests", "e2e", "a.spec.ts")
	if err := os.WriteFile(specPath, []byte("import { test } from '@playwright/test';\n\ntest('x', async () => {});\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{numstatOut: "100\t100\ttests/e2e/a.spec.ts\n200\t5\ttests/e2e/b.spec.ts\n300\t1\ttests/e2e/c.spec.ts\n"}
	d := &Driver{
		Guardrails: Guardrails{MaxFiles: 4, MaxLines: 180},
		Runner:     runner,
		PlaywrightRunner: fakePlaywrightRunner{},
		RepoDir:          dir,
	}

	in := Input{
		RunID:          "guardrail-run",
		Classification: &classifier.Classification{ErrorType: classifier.ErrorFrontendTiming},
		Instructions:   &plan.FixAgentInstructions{SuspectedPaths: []string{specPath}},
	}

	out := d.Run(context.Background(), in)

	if out.Patch != "" {
		t.Errorf("expected empty patch after guardrail trip, got %q", out.Patch)
	}
	if len(runner.checkedOut) != 1 || runner.checkedOut[0] != specPath {
		t.Errorf("expected %s to be reverted via git checkout, got %v", specPath, runner.checkedOut)
	}
	if !out.Metadata.NeedsManualReview {
		t.Error("expected needs_manual_review = true")
	}
	if out.Metadata.RiskAssessment.Level != "critical" {
		t.Errorf("risk level = %q, want critical", out.Metadata.RiskAssessment.Level)
	}
}

func TestDriver_HappyPathFrontendTiming(t *testing.T) {
	dir := t.TempDir()
	withCwd(t, dir)
	if err := os.MkdirAll("tests/e2e", 0o755); err != nil {
		t.Fatal(err)
	}
	specPath := filepath.Join("tests", "e2e", "a.spec.ts")
	if err := os.WriteFile(specPath, []byte("import { test } from '@playwright/test';\n\ntest('x', async () => {});\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &Driver{
		Guardrails:       Guardrails{MaxFiles: 4, MaxLines: 180},
		Runner:           &fakeRunner{numstatOut: "1\t0\ttests/e2e/a.spec.ts\n", diffOut: "diff --git a/tests/e2e/a.spec.ts b/tests/e2e/a.spec.ts\n"},
		PlaywrightRunner: fakePlaywrightRunner{result: &subprocess.Result{ExitCode: 0}},
		RepoDir:          dir,
	}

	in := Input{
		RunID:          "ok-run",
		SpecPaths:      []string{specPath},
		Classification: &classifier.Classification{ErrorType: classifier.ErrorFrontendTiming},
		Instructions:   &plan.FixAgentInstructions{SuspectedPaths: []string{specPath}},
	}

	out := d.Run(context.Background(), in)

	if out.Patch == "" {
		t.Error("expected a non-empty patch")
	}
	if out.Metadata.NeedsManualReview {
		t.Error("expected needs_manual_review = false on a clean run")
	}
	if out.Metadata.Status != "ok" {
		t.Errorf("status = %q, want ok", out.Metadata.Status)
	}
	if !out.Metadata.Validation.Attempted {
		t.Error("expected validation to be attempted for frontend-timing with spec paths")
	}
	if !out.Metadata.Validation.OK {
		t.Error("expected validation.ok = true")
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "test.setTimeout(60000);") {
		t.Errorf("expected the file to be patched, got:\n%s", data)
	}
}

func TestDriver_OtherErrorTypesMakeNoEdits(t *testing.T) {
	dir := t.TempDir()
	d := &Driver{
		Guardrails:       Guardrails{MaxFiles: 4, MaxLines: 180},
		Runner:           &fakeRunner{numstatOut: ""},
		PlaywrightRunner: fakePlaywrightRunner{},
		RepoDir:          dir,
	}

	in := Input{
		RunID:          "passive-run",
		Classification: &classifier.Classification{ErrorType: classifier.ErrorBackendMigration},
		Instructions:   &plan.FixAgentInstructions{SuspectedPaths: []string{"django/models.py"}},
	}

	out := d.Run(context.Background(), in)

	if len(out.Metadata.ChangeSummary.ChangedFiles) != 0 {
		t.Errorf("expected no changed files, got %v", out.Metadata.ChangeSummary.ChangedFiles)
	}
	if out.Patch != "" {
		t.Errorf("expected empty patch with no changes, got %q", out.Patch)
	}
}
