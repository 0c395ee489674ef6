// Command fix-agent runs the Fix-Agent's three batch stages as separate
// cobra subcommands, one process invocation per stage, matching the CI
// orchestrating workflow's step-by-step invocation model.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/praxi/ci-triage/internal/logging"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "fix-agent",
	Short: "Deterministic CI-failure remediation for the Playwright/Django pipeline",
	Long: `fix-agent prepares a Fix-Agent input from a log bundle, applies a
scoped patch and optional validation rerun, and stages a PR decision record
for a downstream collaborator to act on.`,
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return logging.New(logging.LevelFromCount(verbosity))
}
