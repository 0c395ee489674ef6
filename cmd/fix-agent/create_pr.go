package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/praxi/ci-triage/internal/prcreator"
)

var (
	createPRMetadata string
	createPRPatch    string
	createPRDryRun   bool
	createPROutDir   string
)

var createPRCmd = &cobra.Command{
	Use:   "create-pr",
	Short: "Stage a PR decision from Fix-Agent metadata",
	Long: `create-pr reads a Fix-Agent metadata record and its companion patch,
applies the deterministic staging rule (changes present, run status "ok",
no manual review required), and writes pr-decision-<run_id>.json. It
never calls a git-hosting API: the actual PR, if any, is created by an
external collaborator from the staged decision. --dry-run prints the
decision instead of writing it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		metadata, err := prcreator.LoadMetadata(createPRMetadata)
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}

		if _, err := os.Stat(createPRPatch); err != nil {
			return fmt.Errorf("read patch: %w", err)
		}

		decision := prcreator.Decide(metadata)

		if createPRDryRun {
			data, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal decision: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		outDir := createPROutDir
		if outDir == "" {
			outDir = filepath.Dir(createPRMetadata)
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create out-dir: %w", err)
		}

		decisionPath := filepath.Join(outDir, fmt.Sprintf("pr-decision-%s.json", decision.RunID))
		if err := prcreator.WriteDecision(decisionPath, decision); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}

		newLogger().Info("wrote PR decision", "path", decisionPath, "staged", decision.Staged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createPRCmd)
	createPRCmd.Flags().StringVar(&createPRMetadata, "metadata", "", "Path to the Fix-Agent metadata-<run-id>.json (required)")
	createPRCmd.Flags().StringVar(&createPRPatch, "patch", "", "Path to the Fix-Agent patch-<run-id>.diff (required)")
	createPRCmd.Flags().BoolVar(&createPRDryRun, "dry-run", false, "Print the decision instead of writing it")
	createPRCmd.Flags().StringVar(&createPROutDir, "out-dir", "", "Directory to write the decision into (default: the metadata file's directory)")
	createPRCmd.MarkFlagRequired("metadata")
	createPRCmd.MarkFlagRequired("patch")
}
