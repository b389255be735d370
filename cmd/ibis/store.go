// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ibis-pipeline/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the SQLite metrics store (ingest, query, export)",
	Long: `Store indexes the buffer-zone metrics table in a SQLite database at
<output>/index/ibis.db. Use subcommands to ingest the table, query it
with filters, or export it to YAML or JSON.`,
}

// --- ingest subcommand ---

var storeIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the buffer-zone metrics table into the database",
	Long: `Ingest reads <output>/buffer_zone/buffer_zone_metrics.csv into the
database, replacing prior rows. An unchanged file is skipped.`,
	RunE: runStoreIngest,
}

func runStoreIngest(cmd *cobra.Command, args []string) error {
	s, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	csvPath, _ := cmd.Flags().GetString("table")
	if csvPath == "" {
		csvPath = filepath.Join(cfg.OutputDir, "buffer_zone", "buffer_zone_metrics.csv")
	}

	_, err = s.Ingest(context.Background(), csvPath, os.Stdout)
	return err
}

// --- query subcommand ---

var storeQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the metrics store with filters",
	Long: `Query retrieves metrics rows filtered by subject, radius, or minimum
voxel count, ordered by subject, radius, then seed.`,
	RunE: runStoreQuery,
}

func runStoreQuery(cmd *cobra.Command, args []string) error {
	s, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := queryOptsFromFlags(cmd)
	results, err := s.Query(context.Background(), opts)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-10s  %-6s  %-8s  %-7s  %-12s  %-12s\n",
		"Subject", "Seed", "Radius", "Voxels", "Mean", "Std")
	for _, r := range results {
		fmt.Fprintf(os.Stdout, "%-10s  %-6d  %-8.2f  %-7d  %-12.5g  %-12.5g\n",
			r.SubjectID, r.SeedID, r.RadiusMM, r.VoxelCount, r.MeanValue, r.StdValue)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- subjects subcommand ---

var storeSubjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List ingested subjects and their row counts",
	RunE:  runStoreSubjects,
}

func runStoreSubjects(cmd *cobra.Command, args []string) error {
	s, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	subjects, err := s.Subjects(context.Background())
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		fmt.Println("No subjects ingested.")
		return nil
	}
	for _, sc := range subjects {
		fmt.Fprintf(os.Stdout, "%-12s  %d record(s)\n", sc.ID, sc.Records)
	}
	return nil
}

// --- export subcommand ---

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the metrics store to YAML or JSON",
	Long: `Export writes matching metrics rows to <output>/index/export.yaml or
export.json. Supports the same filter flags as query.`,
	RunE: runStoreExport,
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	s, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := queryOptsFromFlags(cmd)

	switch format {
	case "yaml", "":
		if err := s.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", filepath.Join(cfg.OutputDir, "index", "export.yaml"))
	case "json":
		if err := s.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", filepath.Join(cfg.OutputDir, "index", "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	return nil
}

// --- shared helpers ---

type storePaths struct {
	OutputDir string
}

func openStore(cmd *cobra.Command) (*store.Store, storePaths, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, storePaths{}, err
	}
	s, err := store.NewStore(cfg.Store, cfg.Paths.OutputDir)
	if err != nil {
		return nil, storePaths{}, err
	}
	return s, storePaths{OutputDir: cfg.Paths.OutputDir}, nil
}

func queryOptsFromFlags(cmd *cobra.Command) store.QueryOptions {
	subject, _ := cmd.Flags().GetString("subject")
	radius, _ := cmd.Flags().GetFloat64("radius")
	minVoxels, _ := cmd.Flags().GetInt("min-voxels")
	limit, _ := cmd.Flags().GetInt("limit")

	return store.QueryOptions{
		SubjectID:  subject,
		Radius:     radius,
		MinVoxels:  minVoxels,
		MaxResults: limit,
	}
}

func init() {
	storeIngestCmd.Flags().String("table", "", "metrics CSV to ingest (default: <output>/buffer_zone/buffer_zone_metrics.csv)")

	storeQueryCmd.Flags().String("subject", "", "filter by subject id")
	storeQueryCmd.Flags().Float64("radius", 0, "filter by radius in mm")
	storeQueryCmd.Flags().Int("min-voxels", 0, "drop rows with fewer voxels")
	storeQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	storeQueryCmd.Flags().Bool("json", false, "output results as JSON")

	storeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	storeExportCmd.Flags().String("subject", "", "filter by subject id for partial export")
	storeExportCmd.Flags().Float64("radius", 0, "filter by radius in mm for partial export")
	storeExportCmd.Flags().Int("min-voxels", 0, "drop rows with fewer voxels")
	storeExportCmd.Flags().Int("limit", 0, "maximum rows to export (0 = all)")

	storeCmd.AddCommand(storeIngestCmd)
	storeCmd.AddCommand(storeQueryCmd)
	storeCmd.AddCommand(storeSubjectsCmd)
	storeCmd.AddCommand(storeExportCmd)

	rootCmd.AddCommand(storeCmd)
}
