// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/consolidate"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge per-covariate CSVs into unified analysis tables",
	Long: `Consolidate merges the buffer_zone, variables/edt, and variables/var
trees into one table each (one labelled column per source file, rows
aligned positionally), then combines them into
<output>/consolidated/cov_all_consolidated.csv.

Rows with missing values are dropped by default; use --fill to
substitute a constant instead.`,
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("fill") {
		cfg.Consolidation.HandleMissing = types.MissingFill
		cfg.Consolidation.FillValue, _ = cmd.Flags().GetFloat64("fill")
	}

	summary, err := consolidate.Run(cfg.Consolidation, cfg.Paths.InputDir, cfg.Paths.OutputDir, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d source file(s) failed", summary.Failed)
	}
	return nil
}

func init() {
	consolidateCmd.Flags().Float64("fill", 0, "fill missing values with this constant instead of dropping rows")

	rootCmd.AddCommand(consolidateCmd)
}
