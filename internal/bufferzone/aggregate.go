// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bufferzone extracts aggregated intensity statistics from the
// mask voxels within a physical radius of each seed.
package bufferzone

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// Aggregate computes the buffer-zone record for one seed at one radius.
// matched holds ordinals into the indexed point set; values holds the
// intensity at each indexed point, or nil in coordinate-only mode.
//
// No record is produced when matched is empty: a seed whose sphere
// catches no mask voxel contributes nothing, not a null-filled row.
// With nil values the voxel count is still meaningful and the four
// statistics are NaN. The standard deviation is the population standard
// deviation, not the sample one.
func Aggregate(seed types.Seed, radius float64, matched []int, values []float64) (types.BufferZoneRecord, bool) {
	if len(matched) == 0 {
		return types.BufferZoneRecord{}, false
	}

	rec := types.BufferZoneRecord{
		SubjectID:  seed.SubjectID,
		SeedID:     seed.SeedID,
		X:          seed.X,
		Y:          seed.Y,
		Z:          seed.Z,
		RadiusMM:   radius,
		VoxelCount: len(matched),
		MeanValue:  math.NaN(),
		StdValue:   math.NaN(),
		MaxValue:   math.NaN(),
		MinValue:   math.NaN(),
	}
	if values == nil {
		return rec, true
	}

	vals := make([]float64, len(matched))
	for i, m := range matched {
		vals[i] = values[m]
	}
	rec.MeanValue = stat.Mean(vals, nil)
	rec.StdValue = stat.PopStdDev(vals, nil)
	rec.MaxValue = floats.Max(vals)
	rec.MinValue = floats.Min(vals)
	return rec, true
}
