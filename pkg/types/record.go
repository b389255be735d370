// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared configuration and record types used
// across the pipeline stages.
package types

import (
	"math"
	"strconv"
)

// Seed is a physical-space point of interest around which a buffer zone
// is analysed. Seeds are read-only inputs; they never carry intensities.
type Seed struct {
	// SubjectID is derived from the coordinate file name.
	SubjectID string `json:"subject_id" yaml:"subject_id"`

	// SeedID is the seed's ordinal position within its source file.
	SeedID int `json:"seed_id" yaml:"seed_id"`

	// X, Y, Z are world coordinates in millimetres.
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// BufferZoneRecord is one output row: the aggregated statistics of the
// mask voxels within RadiusMM of a seed. A record exists only when
// VoxelCount >= 1. The four value statistics are NaN in coordinate-only
// mode (no intensity field supplied); they serialize as empty cells.
type BufferZoneRecord struct {
	SubjectID  string  `json:"subject_id" yaml:"subject_id"`
	SeedID     int     `json:"seed_id" yaml:"seed_id"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Z          float64 `json:"z" yaml:"z"`
	RadiusMM   float64 `json:"radius_mm" yaml:"radius_mm"`
	VoxelCount int     `json:"voxel_count" yaml:"voxel_count"`
	MeanValue  float64 `json:"mean_value" yaml:"mean_value"`
	StdValue   float64 `json:"std_value" yaml:"std_value"`
	MaxValue   float64 `json:"max_value" yaml:"max_value"`
	MinValue   float64 `json:"min_value" yaml:"min_value"`
}

// HasValues reports whether the record carries defined intensity
// statistics (false in coordinate-only mode).
func (r BufferZoneRecord) HasValues() bool {
	return !math.IsNaN(r.MeanValue)
}

// ResultColumns is the column order of the flat output table.
var ResultColumns = []string{
	"seed_id", "x", "y", "z", "radius_mm", "voxel_count",
	"mean_value", "std_value", "max_value", "min_value", "subject_id",
}

// Row returns the record formatted in ResultColumns order. NaN
// statistics become empty strings, matching the missing-value convention
// of the downstream modeling tools.
func (r BufferZoneRecord) Row() []string {
	return []string{
		strconv.Itoa(r.SeedID),
		formatFloat(r.X),
		formatFloat(r.Y),
		formatFloat(r.Z),
		formatFloat(r.RadiusMM),
		strconv.Itoa(r.VoxelCount),
		formatFloat(r.MeanValue),
		formatFloat(r.StdValue),
		formatFloat(r.MaxValue),
		formatFloat(r.MinValue),
		r.SubjectID,
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
