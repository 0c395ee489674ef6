// Package enrich makes one best-effort call to Claude to produce a richer,
// human-readable summary of a classified CI failure. It never overrides
// the deterministic classifier's fields and never fails its caller: every
// error path returns an empty string and a non-nil error for the caller to
// log at Warn, nothing more.
package enrich

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/praxi/ci-triage/internal/classifier"
)

const (
	model           = "claude-3-5-haiku-20241022"
	maxOutputTokens = 512
	callTimeout     = 8 * time.Second
)

const systemPrompt = `You summarize CI failure classifications for a human reviewer.
Given a deterministic error_type, confidence, and raw log excerpts, write exactly one
concise paragraph (3-5 sentences) describing what likely went wrong and what to check
first. Do not contradict the given error_type. Do not invent file names or line numbers
that aren't present in the excerpts.`

// QueryFn is the signature for one-shot enrichment calls, injectable for
// testing in place of a real anthropic.Client.
type QueryFn func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Summarizer produces an optional summary_detail for a classification.
type Summarizer struct {
	Query QueryFn
}

// NewFromEnv builds a Summarizer backed by the real Anthropic API if
// ANTHROPIC_API_KEY is set, or returns (nil, false) if enrichment should be
// skipped entirely.
func NewFromEnv() (*Summarizer, bool) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, false
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Summarizer{Query: defaultQuery(client)}, true
}

func defaultQuery(client anthropic.Client) QueryFn {
	return func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxOutputTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("anthropic call failed: %w", err)
		}

		var out strings.Builder
		for _, block := range message.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				out.WriteString(tb.Text)
			}
		}
		return strings.TrimSpace(out.String()), nil
	}
}

// Summarize asks the model for a one-paragraph elaboration of a
// classification, bounded by callTimeout. Callers must treat a non-nil
// error as "no enrichment available", never as a reason to fail the
// surrounding request.
func (s *Summarizer) Summarize(ctx context.Context, c classifier.Classification, playwrightLog, backendLog string) (string, error) {
	if s == nil || s.Query == nil {
		return "", fmt.Errorf("enrichment not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	prompt := buildPrompt(c, playwrightLog, backendLog)
	text, err := s.Query(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return text, nil
}

func buildPrompt(c classifier.Classification, playwrightLog, backendLog string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "error_type: %s\nconfidence: %s\nsummary: %s\n\n", c.ErrorType, c.Confidence, c.Summary)
	fmt.Fprintf(&b, "playwright log tail:\n%s\n\nbackend log tail:\n%s\n", tail(playwrightLog, 2000), tail(backendLog, 2000))
	return b.String()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
