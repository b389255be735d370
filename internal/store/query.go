// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// QueryOptions holds the filters for metrics queries.
type QueryOptions struct {
	// SubjectID filters to one subject when non-empty.
	SubjectID string

	// Radius filters to one radius (mm) when positive.
	Radius float64

	// MinVoxels drops rows whose neighborhood has fewer voxels.
	MinVoxels int

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no filters.
func (q QueryOptions) IsEmpty() bool {
	return q.SubjectID == "" && q.Radius <= 0 && q.MinVoxels <= 0
}

// Query retrieves metrics rows matching the filters, ordered by subject,
// radius, then seed. NULL statistics come back as NaN.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]types.BufferZoneRecord, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT subject_id, seed_id, x, y, z, radius_mm, voxel_count,
			mean_value, std_value, max_value, min_value
		FROM buffer_zone_metrics
		WHERE 1=1`)

	if opts.SubjectID != "" {
		qb.WriteString(` AND subject_id = ?`)
		args = append(args, opts.SubjectID)
	}
	if opts.Radius > 0 {
		qb.WriteString(` AND radius_mm = ?`)
		args = append(args, opts.Radius)
	}
	if opts.MinVoxels > 0 {
		qb.WriteString(` AND voxel_count >= ?`)
		args = append(args, opts.MinVoxels)
	}

	qb.WriteString(` ORDER BY subject_id, radius_mm, seed_id LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var results []types.BufferZoneRecord
	for rows.Next() {
		var (
			rec                       types.BufferZoneRecord
			mean, std, maxVal, minVal sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.SubjectID, &rec.SeedID, &rec.X, &rec.Y, &rec.Z,
			&rec.RadiusMM, &rec.VoxelCount,
			&mean, &std, &maxVal, &minVal,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec.MeanValue = floatOrNaN(mean)
		rec.StdValue = floatOrNaN(std)
		rec.MaxValue = floatOrNaN(maxVal)
		rec.MinValue = floatOrNaN(minVal)
		results = append(results, rec)
	}

	return results, rows.Err()
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SubjectCount is a subject id with its number of stored metrics rows.
type SubjectCount struct {
	ID      string
	Records int
}

// Subjects lists the ingested subjects with their row counts.
func (s *Store) Subjects(ctx context.Context) ([]SubjectCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, records FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying subjects: %w", err)
	}
	defer rows.Close()

	var out []SubjectCount
	for rows.Next() {
		var sc SubjectCount
		if err := rows.Scan(&sc.ID, &sc.Records); err != nil {
			return nil, fmt.Errorf("scanning subject: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
