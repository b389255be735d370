// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

const metricsCSV = `seed_id,x,y,z,radius_mm,voxel_count,mean_value,std_value,max_value,min_value,subject_id
0,1,2,3,5,10,2.5,0.5,3,2,1234
1,4,5,6,5,3,7,1,8,6,1234
0,1,2,3,3,4,,,,,5678
`

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	outputDir := t.TempDir()
	s, err := NewStore(types.StoreConfig{MaxResults: 50}, outputDir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, outputDir
}

func writeMetrics(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "buffer_zone_metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte(metricsCSV), 0o644))
	return path
}

func TestIngestAndQuery(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)

	var log bytes.Buffer
	sum, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Inserted)
	assert.False(t, sum.Skipped)

	results, err := s.Query(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Ordered by subject, radius, seed.
	assert.Equal(t, "1234", results[0].SubjectID)
	assert.Equal(t, 0, results[0].SeedID)
	assert.Equal(t, 2.5, results[0].MeanValue)
	assert.Equal(t, "5678", results[2].SubjectID)
	assert.True(t, math.IsNaN(results[2].MeanValue), "empty cells come back as NaN")
}

func TestIngestSkipsUnchangedFile(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)

	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)

	sum, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)
	assert.True(t, sum.Skipped)
	assert.Contains(t, log.String(), "skipped")
}

func TestQueryFilters(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)
	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)

	ctx := context.Background()

	bySubject, err := s.Query(ctx, QueryOptions{SubjectID: "5678"})
	require.NoError(t, err)
	require.Len(t, bySubject, 1)
	assert.Equal(t, 3.0, bySubject[0].RadiusMM)

	byRadius, err := s.Query(ctx, QueryOptions{Radius: 5})
	require.NoError(t, err)
	assert.Len(t, byRadius, 2)

	byVoxels, err := s.Query(ctx, QueryOptions{MinVoxels: 5})
	require.NoError(t, err)
	require.Len(t, byVoxels, 1)
	assert.Equal(t, 10, byVoxels[0].VoxelCount)

	limited, err := s.Query(ctx, QueryOptions{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSubjectsCounts(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)
	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)

	subjects, err := s.Subjects(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, SubjectCount{ID: "1234", Records: 2}, subjects[0])
	assert.Equal(t, SubjectCount{ID: "5678", Records: 1}, subjects[1])
}

func TestIngestMissingFile(t *testing.T) {
	s, outputDir := newTestStore(t)
	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), filepath.Join(outputDir, "nope.csv"), &log)
	assert.Error(t, err)
}

func TestIngestRejectsMissingColumns(t *testing.T) {
	s, outputDir := newTestStore(t)
	path := filepath.Join(outputDir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), path, &log)
	assert.Error(t, err)
}

func TestExportJSONNullStatistics(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)
	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)

	require.NoError(t, s.ExportJSON(context.Background(), QueryOptions{SubjectID: "5678"}))

	data, err := os.ReadFile(filepath.Join(outputDir, "index", "export.json"))
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "5678", entries[0]["subject_id"])
	assert.Nil(t, entries[0]["mean_value"], "NaN statistics export as null")
}

func TestExportYAMLWritesFile(t *testing.T) {
	s, outputDir := newTestStore(t)
	csvPath := writeMetrics(t, outputDir)
	var log bytes.Buffer
	_, err := s.Ingest(context.Background(), csvPath, &log)
	require.NoError(t, err)

	require.NoError(t, s.ExportYAML(context.Background(), QueryOptions{}))
	info, err := os.Stat(filepath.Join(outputDir, "index", "export.yaml"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
