// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package consolidate merges per-covariate CSV trees into unified
// tables: one row per voxel position, one labelled column per source
// file, aligned positionally.
package consolidate

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/ibis-pipeline/internal/fsutil"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// column is one labelled covariate column with its voxel positions.
type column struct {
	label  string
	coords [][3]int
	values []float64
}

// Summary counts the consolidation outcomes.
type Summary struct {
	Sources  int
	Failed   int
	Tables   int
	NoOutput bool
}

// HasFailures reports whether any source file was skipped.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

// Run consolidates the buffer_zone, variables/edt, and variables/var
// trees under outputDir (falling back to inputDir when a stage wrote
// nothing) and then merges all consolidated tables into one combined
// covariate file. Per-file failures are logged and skipped.
func Run(cfg types.ConsolidationConfig, inputDir, outputDir string, w io.Writer) (Summary, error) {
	var sum Summary
	outDir := filepath.Join(outputDir, "consolidated")

	groups := []struct {
		name   string
		out    string
		prefix string
	}{
		{"buffer_zone", "bz_consolidated.csv", ""},
		{filepath.Join("variables", "edt"), "edt_consolidated.csv", "v1_edt_"},
		{filepath.Join("variables", "var"), "var_consolidated.csv", ""},
	}

	var consolidated []string
	for _, g := range groups {
		dir := filepath.Join(outputDir, g.name)
		if _, err := os.Stat(dir); err != nil {
			dir = filepath.Join(inputDir, g.name)
		}
		outPath := filepath.Join(outDir, g.out)
		n, failed, err := consolidateTree(cfg, dir, outPath, g.prefix, w)
		sum.Sources += n
		sum.Failed += failed
		if err != nil {
			return sum, err
		}
		if n-failed > 0 {
			sum.Tables++
			consolidated = append(consolidated, outPath)
			fmt.Fprintf(w, "consolidated %d file(s) into %s\n", n-failed, outPath)
		}
	}

	if len(consolidated) == 0 {
		fmt.Fprintln(w, "no covariate files to consolidate")
		sum.NoOutput = true
		return sum, nil
	}

	if err := mergeTables(cfg, consolidated, filepath.Join(outDir, "cov_all_consolidated.csv")); err != nil {
		return sum, fmt.Errorf("merging consolidated tables: %w", err)
	}
	sum.Tables++
	fmt.Fprintf(w, "wrote combined table %s\n", filepath.Join(outDir, "cov_all_consolidated.csv"))
	return sum, nil
}

// consolidateTree reads every CSV under dir (including one directory
// level of subfolders) and writes a positional column-merge of them.
func consolidateTree(cfg types.ConsolidationConfig, dir, outPath, prefix string, w io.Writer) (sources, failed int, err error) {
	files := fsutil.FileList(dir, ".csv")
	if entries, dirErr := os.ReadDir(dir); dirErr == nil {
		for _, e := range entries {
			if e.IsDir() {
				files = append(files, fsutil.FileList(filepath.Join(dir, e.Name()), ".csv")...)
			}
		}
	}
	if len(files) == 0 {
		return 0, 0, nil
	}

	var cols []column
	for _, file := range files {
		sources++
		col, readErr := readColumn(file, prefix)
		if readErr != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", filepath.Base(file), readErr)
			failed++
			continue
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return sources, failed, nil
	}
	return sources, failed, writeColumns(cfg, outPath, cols)
}

// readColumn parses one covariate CSV: coordinate columns X,Y,Z (upper
// or lower case) plus a value column. A column named Value or mean_value
// is preferred; otherwise the last column is taken. The file name
// becomes the column label.
func readColumn(path, prefix string) (column, error) {
	f, err := os.Open(path)
	if err != nil {
		return column{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return column{}, fmt.Errorf("reading header: %w", err)
	}

	coordPos := [3]int{-1, -1, -1}
	for hi, h := range header {
		switch strings.ToUpper(h) {
		case "X":
			coordPos[0] = hi
		case "Y":
			coordPos[1] = hi
		case "Z":
			coordPos[2] = hi
		}
	}
	if coordPos[0] < 0 || coordPos[1] < 0 || coordPos[2] < 0 {
		return column{}, fmt.Errorf("no X,Y,Z coordinate columns")
	}
	valuePos := len(header) - 1
	for hi, h := range header {
		if h == "Value" || h == "mean_value" {
			valuePos = hi
			break
		}
	}

	label := strings.TrimSuffix(filepath.Base(path), ".csv")
	label = strings.TrimPrefix(label, prefix)

	col := column{label: label}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return column{}, err
		}
		var ijk [3]int
		for ci, hi := range coordPos {
			v, err := strconv.ParseFloat(rec[hi], 64)
			if err != nil {
				return column{}, fmt.Errorf("bad coordinate %q: %w", rec[hi], err)
			}
			ijk[ci] = int(v)
		}
		v, err := strconv.ParseFloat(rec[valuePos], 64)
		if err != nil {
			return column{}, fmt.Errorf("bad value %q: %w", rec[valuePos], err)
		}
		col.coords = append(col.coords, ijk)
		col.values = append(col.values, v)
	}
	return col, nil
}

// writeColumns emits i,j,k (from the first column's positions) plus one
// value column per source, aligned by row position. Shorter columns are
// padded with the missing marker, then the missing policy is applied.
func writeColumns(cfg types.ConsolidationConfig, outPath string, cols []column) error {
	maxRows := 0
	for _, c := range cols {
		if len(c.values) > maxRows {
			maxRows = len(c.values)
		}
	}

	header := []string{"i", "j", "k"}
	seen := map[string]bool{}
	var kept []column
	for _, c := range cols {
		if seen[c.label] {
			continue
		}
		seen[c.label] = true
		kept = append(kept, c)
		header = append(header, c.label)
	}

	var rows [][]string
	for n := 0; n < maxRows; n++ {
		vals := make([]float64, len(kept))
		missing := false
		for ci, c := range kept {
			if n < len(c.values) {
				vals[ci] = c.values[n]
			} else {
				vals[ci] = math.NaN()
				missing = true
			}
		}
		if missing {
			switch cfg.HandleMissing {
			case types.MissingFill:
				for ci := range vals {
					if math.IsNaN(vals[ci]) {
						vals[ci] = cfg.FillValue
					}
				}
			default: // drop
				continue
			}
		}

		row := make([]string, 0, len(header))
		var ijk [3]int
		if n < len(kept[0].coords) {
			ijk = kept[0].coords[n]
		}
		row = append(row,
			strconv.Itoa(ijk[0]), strconv.Itoa(ijk[1]), strconv.Itoa(ijk[2]))
		for _, v := range vals {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, row)
	}

	return fsutil.WriteCSV(outPath, header, rows)
}

// mergeTables concatenates consolidated tables column-wise, keeping the
// first occurrence of each column label.
func mergeTables(cfg types.ConsolidationConfig, paths []string, outPath string) error {
	var header []string
	seen := map[string]bool{}
	var tables [][][]string // per table: rows of cells
	var keep [][]int        // per table: column indices kept
	maxRows := 0

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		r := csv.NewReader(f)
		recs, err := r.ReadAll()
		f.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if len(recs) == 0 {
			continue
		}
		var kept []int
		for ci, label := range recs[0] {
			if seen[label] {
				continue
			}
			seen[label] = true
			header = append(header, label)
			kept = append(kept, ci)
		}
		tables = append(tables, recs[1:])
		keep = append(keep, kept)
		if len(recs)-1 > maxRows {
			maxRows = len(recs) - 1
		}
	}

	fill := strconv.FormatFloat(cfg.FillValue, 'g', -1, 64)
	var rows [][]string
	for n := 0; n < maxRows; n++ {
		row := make([]string, 0, len(header))
		missing := false
		for ti, t := range tables {
			for _, ci := range keep[ti] {
				if n < len(t) && ci < len(t[n]) {
					row = append(row, t[n][ci])
				} else {
					row = append(row, "")
					missing = true
				}
			}
		}
		if missing {
			if cfg.HandleMissing != types.MissingFill {
				continue
			}
			for i := range row {
				if row[i] == "" {
					row[i] = fill
				}
			}
		}
		rows = append(rows, row)
	}

	return fsutil.WriteCSV(outPath, header, rows)
}
