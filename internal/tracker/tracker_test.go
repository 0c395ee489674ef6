package tracker

import (
	"path/filepath"
	"testing"
	"time"
)

func tempTrackerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "runs.json")
}

func TestNew_EmptyFile(t *testing.T) {
	tr, err := New(tempTrackerPath(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(tr.All()) != 0 {
		t.Fatalf("expected 0 runs, got %d", len(tr.All()))
	}
}

func TestUpsert_NewRunSetsFirstSeenAndCount(t *testing.T) {
	tr, err := New(tempTrackerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rec := tr.Upsert(RunRecord{RunID: "run-1", ErrorType: "frontend-timing"}, now)

	if rec.SeenCount != 1 {
		t.Errorf("SeenCount = %d, want 1", rec.SeenCount)
	}
	if !rec.FirstSeen.Equal(now) || !rec.LastUpdated.Equal(now) {
		t.Errorf("FirstSeen/LastUpdated not set to now")
	}
}

func TestUpsert_ExistingRunPreservesFirstSeenAndIncrementsCount(t *testing.T) {
	tr, err := New(tempTrackerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	first := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	tr.Upsert(RunRecord{RunID: "run-1", ErrorType: "frontend-timing"}, first)
	rec := tr.Upsert(RunRecord{RunID: "run-1", ErrorType: "frontend-timing", RiskLevel: "low"}, second)

	if rec.SeenCount != 2 {
		t.Errorf("SeenCount = %d, want 2", rec.SeenCount)
	}
	if !rec.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want %v", rec.FirstSeen, first)
	}
	if !rec.LastUpdated.Equal(second) {
		t.Errorf("LastUpdated = %v, want %v", rec.LastUpdated, second)
	}
	if rec.RiskLevel != "low" {
		t.Errorf("RiskLevel = %q, want the latest value", rec.RiskLevel)
	}
}

func TestSaveAndReload_RoundTrips(t *testing.T) {
	path := tempTrackerPath(t)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	tr, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	tr.Upsert(RunRecord{RunID: "run-1", ErrorType: "backend-500", NeedsManualReview: true}, now)
	if err := tr.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := reloaded.Get("run-1")
	if rec == nil {
		t.Fatal("expected run-1 to survive reload")
	}
	if rec.ErrorType != "backend-500" {
		t.Errorf("ErrorType = %q", rec.ErrorType)
	}
}

func TestNeedingReview_FiltersFlaggedRuns(t *testing.T) {
	tr, err := New(tempTrackerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	tr.Upsert(RunRecord{RunID: "clean", NeedsManualReview: false}, now)
	tr.Upsert(RunRecord{RunID: "flagged", NeedsManualReview: true}, now)

	got := tr.NeedingReview()
	if len(got) != 1 || got[0].RunID != "flagged" {
		t.Errorf("NeedingReview() = %v, want only 'flagged'", got)
	}
}
