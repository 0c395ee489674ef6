// Package subprocess isolates the Fix-Agent's two external command
// invocations (git diff, npx playwright test) behind a small interface.
package subprocess

import (
	"context"
	"os/exec"
)

// Result holds a command's exit code and captured output.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command in a working directory and returns its result.
// Implementations MAY swap os/exec for a library-driven approach; the
// metadata field shapes that downstream code derives from Result are
// contractual, the execution mechanism is not.
type Runner interface {
	Run(ctx context.Context, name string, args []string, dir string) (*Result, error)
}

// DefaultRunner implements Runner using os/exec.
type DefaultRunner struct{}

func (DefaultRunner) Run(ctx context.Context, name string, args []string, dir string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	stdout, err := cmd.Output()
	result := &Result{Stdout: string(stdout)}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Stderr = string(exitErr.Stderr)
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// GitDiff runs `git diff` against HEAD and returns the raw patch text.
func GitDiff(ctx context.Context, r Runner, dir string) (string, error) {
	res, err := r.Run(ctx, "git", []string{"diff", "HEAD"}, dir)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// GitDiffNumstat runs `git diff --numstat` against HEAD for diff accounting.
func GitDiffNumstat(ctx context.Context, r Runner, dir string) (string, error) {
	res, err := r.Run(ctx, "git", []string{"diff", "--numstat", "HEAD"}, dir)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// GitCheckoutFile reverts one file to its HEAD content, used by the
// guardrail revert-all path.
func GitCheckoutFile(ctx context.Context, r Runner, dir, path string) error {
	_, err := r.Run(ctx, "git", []string{"checkout", "HEAD", "--", path}, dir)
	return err
}

// PlaywrightRunner runs a bounded subset of the Playwright suite for
// post-patch validation.
type PlaywrightRunner interface {
	RunSubset(ctx context.Context, specs []string, dir string) (*Result, error)
}

// DefaultPlaywrightRunner shells out to `npx playwright test`.
type DefaultPlaywrightRunner struct {
	Runner Runner
}

func NewDefaultPlaywrightRunner() DefaultPlaywrightRunner {
	return DefaultPlaywrightRunner{Runner: DefaultRunner{}}
}

func (p DefaultPlaywrightRunner) RunSubset(ctx context.Context, specs []string, dir string) (*Result, error) {
	args := append([]string{"playwright", "test"}, specs...)
	args = append(args, "--max-failures=1", "--workers=1")
	return p.Runner.Run(ctx, "npx", args, dir)
}
