// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists buffer-zone metrics in a SQLite database for
// filtered retrieval and export.
package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "ibis.db"
)

// Store manages the metrics SQLite database.
type Store struct {
	db         *sql.DB
	outputDir  string
	maxResults int
}

// NewStore opens or creates the database at outputDir/index/ibis.db and
// ensures the schema exists.
func NewStore(cfg types.StoreConfig, outputDir string) (*Store, error) {
	dbDir := filepath.Join(outputDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	s := &Store{db: db, outputDir: outputDir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			id TEXT PRIMARY KEY,
			records INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS buffer_zone_metrics (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			seed_id INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			radius_mm REAL NOT NULL,
			voxel_count INTEGER NOT NULL,
			mean_value REAL,
			std_value REAL,
			max_value REAL,
			min_value REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_subject ON buffer_zone_metrics(subject_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_radius ON buffer_zone_metrics(radius_mm)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			source TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from one ingest run.
type IngestSummary struct {
	Inserted int
	Skipped  bool
}

// Ingest loads the buffer-zone metrics table from csvPath into the
// database. An unchanged file (same modification time as the previous
// ingest) is skipped; otherwise the metrics table is rebuilt from the
// file in one transaction.
func (s *Store) Ingest(ctx context.Context, csvPath string, w io.Writer) (IngestSummary, error) {
	info, err := os.Stat(csvPath)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading metrics table %s: %w", csvPath, err)
	}
	modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

	var storedModTime string
	err = s.db.QueryRowContext(ctx,
		`SELECT file_mod_time FROM ingest_status WHERE source = ?`, csvPath,
	).Scan(&storedModTime)
	if err == nil && storedModTime == modTime {
		fmt.Fprintf(w, "skipped %s (unchanged)\n", csvPath)
		return IngestSummary{Skipped: true}, nil
	}

	records, err := readMetricsCSV(csvPath)
	if err != nil {
		return IngestSummary{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM buffer_zone_metrics`); err != nil {
		return IngestSummary{}, fmt.Errorf("clearing old metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects`); err != nil {
		return IngestSummary{}, fmt.Errorf("clearing old subjects: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO buffer_zone_metrics (subject_id, seed_id, x, y, z, radius_mm, voxel_count,
			mean_value, std_value, max_value, min_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	perSubject := map[string]int{}
	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.SubjectID, rec.SeedID, rec.X, rec.Y, rec.Z,
			rec.RadiusMM, rec.VoxelCount,
			nullable(rec.MeanValue), nullable(rec.StdValue),
			nullable(rec.MaxValue), nullable(rec.MinValue),
		)
		if err != nil {
			return IngestSummary{}, fmt.Errorf("inserting record (subject %s seed %d): %w",
				rec.SubjectID, rec.SeedID, err)
		}
		perSubject[rec.SubjectID]++
	}

	for id, n := range perSubject {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subjects (id, records) VALUES (?, ?)`, id, n)
		if err != nil {
			return IngestSummary{}, fmt.Errorf("inserting subject %s: %w", id, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingest_status (source, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(source) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		csvPath, modTime,
	)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("updating ingest status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return IngestSummary{}, fmt.Errorf("committing: %w", err)
	}
	fmt.Fprintf(w, "ingested %d record(s) from %s\n", len(records), csvPath)
	return IngestSummary{Inserted: len(records)}, nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// readMetricsCSV parses the flat metrics table in ResultColumns order.
func readMetricsCSV(path string) ([]types.BufferZoneRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	pos := map[string]int{}
	for hi, h := range header {
		pos[h] = hi
	}
	for _, want := range types.ResultColumns {
		if _, ok := pos[want]; !ok {
			return nil, fmt.Errorf("metrics table %s missing column %q", path, want)
		}
	}

	var out []types.BufferZoneRecord
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s row %d: %w", path, row+1, err)
		}
		get := func(col string) string { return rec[pos[col]] }

		seedID, err := strconv.Atoi(get("seed_id"))
		if err != nil {
			return nil, fmt.Errorf("row %d seed_id: %w", row+1, err)
		}
		voxels, err := strconv.Atoi(get("voxel_count"))
		if err != nil {
			return nil, fmt.Errorf("row %d voxel_count: %w", row+1, err)
		}

		parse := func(col string) (float64, error) {
			cell := get(col)
			if cell == "" {
				return math.NaN(), nil
			}
			return strconv.ParseFloat(cell, 64)
		}
		var vals [8]float64
		for i, col := range []string{"x", "y", "z", "radius_mm", "mean_value", "std_value", "max_value", "min_value"} {
			if vals[i], err = parse(col); err != nil {
				return nil, fmt.Errorf("row %d %s: %w", row+1, col, err)
			}
		}

		out = append(out, types.BufferZoneRecord{
			SubjectID:  get("subject_id"),
			SeedID:     seedID,
			X:          vals[0],
			Y:          vals[1],
			Z:          vals[2],
			RadiusMM:   vals[3],
			VoxelCount: voxels,
			MeanValue:  vals[4],
			StdValue:   vals[5],
			MaxValue:   vals[6],
			MinValue:   vals[7],
		})
	}
	return out, nil
}
