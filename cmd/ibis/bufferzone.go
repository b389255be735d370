// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/bufferzone"
)

var bufferzoneCmd = &cobra.Command{
	Use:   "bufferzone",
	Short: "Extract per-seed buffer-zone statistics from NIfTI volumes",
	Long: `Bufferzone sweeps every seed coordinate file under <input>/coordinates
against the configured radii. For each seed it collects the active mask
voxels within the radius (millimetres, world space) and records the
voxel count plus mean, population standard deviation, max, and min of
the image intensity there. Without an image volume only voxel counts
are recorded.

All results land in one table:
<output>/buffer_zone/buffer_zone_metrics.csv.`,
	RunE: runBufferzone,
}

func runBufferzone(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if radius, _ := cmd.Flags().GetFloat64("radius"); radius > 0 {
		cfg.BufferZone.DefaultRadius = radius
		cfg.BufferZone.RadiusOptions = nil
	}
	if radii, _ := cmd.Flags().GetFloat64Slice("radii"); len(radii) > 0 {
		cfg.BufferZone.RadiusOptions = radii
	}

	analyzer := bufferzone.NewAnalyzer(cfg.BufferZone)
	result, err := analyzer.Run(context.Background(), cfg.Paths.InputDir, cfg.Paths.OutputDir, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d coordinate file(s) failed", result.Failed)
	}
	return nil
}

func init() {
	bufferzoneCmd.Flags().Float64("radius", 0, "sphere radius in mm (overrides config)")
	bufferzoneCmd.Flags().Float64Slice("radii", nil, "radius sweep in mm, e.g. --radii 3,5,7")

	rootCmd.AddCommand(bufferzoneCmd)
}
