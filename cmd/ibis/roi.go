// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/roi"
)

var roiCmd = &cobra.Command{
	Use:   "roi",
	Short: "Extract masked voxel coordinates and intensities per subject",
	Long: `ROI reads every image under <input>/images, aligns the first mask under
<input>/masks to each image grid, and writes one row per active voxel:
voxel indices, image intensity, and the subject id parsed from the image
file name. All subjects are concatenated into
<output>/roi/extracted_coordinates.csv.`,
	RunE: runROI,
}

func runROI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	result, err := roi.Run(cfg.ROI, cfg.Paths.InputDir, cfg.Paths.OutputDir, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d image(s) failed", result.Failed)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(roiCmd)
}
