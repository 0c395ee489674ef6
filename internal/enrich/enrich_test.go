package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/praxi/ci-triage/internal/classifier"
)

func TestSummarize_ReturnsQueryResult(t *testing.T) {
	s := &Summarizer{
		Query: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "the login spec timed out waiting on a network call", nil
		},
	}

	c := classifier.Classification{ErrorType: classifier.ErrorFrontendTiming, Confidence: classifier.ConfidenceMedium}
	got, err := s.Summarize(context.Background(), c, "playwright log", "backend log")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got == "" {
		t.Error("expected a non-empty summary")
	}
}

func TestSummarize_PropagatesQueryError(t *testing.T) {
	s := &Summarizer{
		Query: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "", errors.New("rate limited")
		},
	}

	c := classifier.Classification{ErrorType: classifier.ErrorUnknown}
	_, err := s.Summarize(context.Background(), c, "", "")
	if err == nil {
		t.Fatal("expected an error to be returned to the caller")
	}
}

func TestSummarize_NilSummarizerReturnsError(t *testing.T) {
	var s *Summarizer
	_, err := s.Summarize(context.Background(), classifier.Classification{}, "", "")
	if err == nil {
		t.Fatal("expected an error for an unconfigured summarizer")
	}
}

func TestBuildPrompt_IncludesErrorTypeAndLogTails(t *testing.T) {
	c := classifier.Classification{ErrorType: classifier.ErrorBackend500, Confidence: classifier.ConfidenceHigh, Summary: "5xx observed"}
	prompt := buildPrompt(c, "playwright output here", "backend output here")

	for _, want := range []string{"backend-500", "5xx observed", "playwright output here", "backend output here"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q: %s", want, prompt)
		}
	}
}
