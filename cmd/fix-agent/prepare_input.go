package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/praxi/ci-triage/internal/config"
	"github.com/praxi/ci-triage/internal/fixagent"
	"github.com/praxi/ci-triage/internal/logbundle"
)

var (
	prepareInputLogBundle string
	prepareInputOutDir    string
	prepareInputOut       string
)

var prepareInputCmd = &cobra.Command{
	Use:   "prepare-input",
	Short: "Build a Fix-Agent input record from a log bundle",
	Long: `prepare-input reads a LogBundle (the same payload the Ingest Gateway
accepts), optionally calls the Log Processor to pick up its classification and
fix instructions, and writes the resulting Input record for apply-and-validate
to consume. It always produces an artifact; the only non-zero exit is a
startup failure that leaves it with nothing to act on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		raw, err := readLogBundleInput()
		if err != nil {
			return fmt.Errorf("read log bundle: %w", err)
		}

		bundle, fieldErrs, parseErr := logbundle.Parse(raw)
		if parseErr != nil {
			return fmt.Errorf("parse log bundle: %w", parseErr)
		}
		if len(fieldErrs) > 0 {
			return fmt.Errorf("log bundle failed validation: %v", fieldErrs)
		}

		cfg := config.LoadGatewayConfig()

		input := fixagent.PrepareInput(cmd.Context(), *bundle, cfg.DeveloperAgentURL, cfg.DeveloperAgentToken, logger)

		if err := os.MkdirAll(prepareInputOutDir, 0o755); err != nil {
			return fmt.Errorf("create out-dir: %w", err)
		}
		outPath := filepath.Join(prepareInputOutDir, prepareInputOut)

		data, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write input: %w", err)
		}

		logger.Info("wrote fix-agent input", "path", outPath, "run_id", input.RunID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prepareInputCmd)
	prepareInputCmd.Flags().StringVar(&prepareInputLogBundle, "log-bundle", "", "Path to the LogBundle JSON file (default: read from stdin)")
	prepareInputCmd.Flags().StringVar(&prepareInputOutDir, "out-dir", "fix-agent", "Directory to write the input record into")
	prepareInputCmd.Flags().StringVar(&prepareInputOut, "out", "input.json", "Filename for the input record")
}

func readLogBundleInput() ([]byte, error) {
	if prepareInputLogBundle != "" {
		return os.ReadFile(prepareInputLogBundle)
	}
	return io.ReadAll(os.Stdin)
}
