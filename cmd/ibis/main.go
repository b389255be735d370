// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ibis CLI: voxel extraction
// stages for structural brain imaging studies, composed into a pipeline.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the ibis CLI.
var rootCmd = &cobra.Command{
	Use:   "ibis",
	Short: "Voxel extraction pipeline for structural brain imaging",
	Long: `ibis extracts voxel-level measures from NIfTI brain volumes: per-seed
buffer-zone statistics, masked ROI coordinates, and covariate volumes,
then consolidates them into analysis-ready tables.

Each stage is a subcommand: roi, bufferzone, variables, and consolidate.
Use run to execute the stages in order, and store to index the resulting
metrics in SQLite for filtered queries and export.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ibis.yaml or ~/.config/ibis/config.yaml)")
	rootCmd.PersistentFlags().String("input-dir", "", "base input directory (contains coordinates/, images/, masks/)")
	rootCmd.PersistentFlags().String("output-dir", "", "base output directory")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ibis")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ibis"))
		}
	}

	viper.SetEnvPrefix("IBIS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig merges the config file over the documented defaults, then
// applies the shared directory flags.
func loadConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	cfg := types.DefaultConfig()
	yamlTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
	if err := viper.Unmarshal(&cfg, yamlTags); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if dir, _ := cmd.Flags().GetString("input-dir"); dir != "" {
		cfg.Paths.InputDir = dir
	}
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		cfg.Paths.OutputDir = dir
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
