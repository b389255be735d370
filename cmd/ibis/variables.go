// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/variables"
)

var variablesCmd = &cobra.Command{
	Use:   "variables",
	Short: "Extract covariate volumes (EDT and variance) at mask voxels",
	Long: `Variables samples Euclidean-distance-transform volumes from <input>/edt
and variance volumes from <input>/var at the active voxels of the first
mask, writing one X,Y,Z,Value CSV per volume below <output>/variables/.`,
	RunE: runVariables,
}

func runVariables(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if skip, _ := cmd.Flags().GetBool("skip-edt"); skip {
		cfg.Variables.EDTEnabled = false
	}
	if skip, _ := cmd.Flags().GetBool("skip-var"); skip {
		cfg.Variables.VarEnabled = false
	}

	result, err := variables.Run(cfg.Variables, cfg.Paths.InputDir, cfg.Paths.OutputDir, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d volume(s) failed", result.Failed)
	}
	return nil
}

func init() {
	variablesCmd.Flags().Bool("skip-edt", false, "skip distance-transform volumes")
	variablesCmd.Flags().Bool("skip-var", false, "skip variance volumes")

	rootCmd.AddCommand(variablesCmd)
}
