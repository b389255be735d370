// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one metrics row in export form. Statistics are pointers
// so rows without intensity values serialize as null rather than NaN.
type ExportEntry struct {
	SubjectID  string   `json:"subject_id" yaml:"subject_id"`
	SeedID     int      `json:"seed_id" yaml:"seed_id"`
	X          float64  `json:"x" yaml:"x"`
	Y          float64  `json:"y" yaml:"y"`
	Z          float64  `json:"z" yaml:"z"`
	RadiusMM   float64  `json:"radius_mm" yaml:"radius_mm"`
	VoxelCount int      `json:"voxel_count" yaml:"voxel_count"`
	MeanValue  *float64 `json:"mean_value" yaml:"mean_value"`
	StdValue   *float64 `json:"std_value" yaml:"std_value"`
	MaxValue   *float64 `json:"max_value" yaml:"max_value"`
	MinValue   *float64 `json:"min_value" yaml:"min_value"`
}

const exportLimit = 1000000

// ExportYAML writes matching metrics to output/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.outputDir, indexDir, "export.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes matching metrics to output/index/export.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.outputDir, indexDir, "export.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	results, err := s.Query(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			SubjectID:  r.SubjectID,
			SeedID:     r.SeedID,
			X:          r.X,
			Y:          r.Y,
			Z:          r.Z,
			RadiusMM:   r.RadiusMM,
			VoxelCount: r.VoxelCount,
			MeanValue:  optional(r.MeanValue),
			StdValue:   optional(r.StdValue),
			MaxValue:   optional(r.MaxValue),
			MinValue:   optional(r.MinValue),
		}
	}
	return entries, nil
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
