// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [steps...]",
	Short: "Run the extraction pipeline end to end",
	Long: `Run executes the pipeline stages in order: roi, bufferzone, variables,
consolidate. Name individual steps as arguments to run a subset; they
execute in pipeline order regardless of the order given.

A failing stage is reported and the remaining stages still run.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	summary, err := pipeline.Run(context.Background(), cfg, args, os.Stdout)

	if len(summary.Steps) > 0 {
		var parts []string
		for _, st := range summary.Steps {
			status := "ok"
			switch {
			case st.Err != nil:
				status = "error"
			case st.NoOutput:
				status = "no output"
			case st.Failed > 0:
				status = fmt.Sprintf("%d failure(s)", st.Failed)
			}
			parts = append(parts, fmt.Sprintf("%s: %s", st.Name, status))
		}
		fmt.Printf("pipeline: %s\n", strings.Join(parts, ", "))
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
