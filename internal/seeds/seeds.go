// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package seeds reads seed coordinate tables. Input files are validated
// at this boundary: required columns must be present and numeric, and
// violations surface as errors the batch layer logs and skips.
package seeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// ErrMissingColumns reports a coordinate file without the required
// coordinate columns. Per-file and recoverable.
var ErrMissingColumns = errors.New("seeds: required coordinate columns missing")

// ErrNoSubjectID reports a file name the subject-id pattern does not match.
var ErrNoSubjectID = errors.New("seeds: file name does not match subject id pattern")

// DefaultColumns is the conventional coordinate column set.
var DefaultColumns = []string{"X", "Y", "Z"}

// ExtractSubjectID applies pattern to the base name of path and returns
// the first capture group (the whole match when there is none).
func ExtractSubjectID(path, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("compiling subject id pattern %q: %w", pattern, err)
	}
	m := re.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", fmt.Errorf("%w: %s against %q", ErrNoSubjectID, filepath.Base(path), pattern)
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}

// ReadFile reads one coordinate CSV. Columns beyond the coordinate set
// are ignored. Seeds keep their row order; SeedID is the zero-based row
// ordinal and SubjectID is stamped on every seed.
func ReadFile(path string, columns []string, subjectID string) ([]types.Seed, error) {
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	if len(columns) != 3 {
		return nil, fmt.Errorf("seeds: want 3 coordinate columns, got %d", len(columns))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	pos := make([]int, 3)
	for ci, want := range columns {
		pos[ci] = -1
		for hi, h := range header {
			if h == want {
				pos[ci] = hi
				break
			}
		}
		if pos[ci] < 0 {
			return nil, fmt.Errorf("%w: %q not in %s", ErrMissingColumns, want, path)
		}
	}

	var out []types.Seed
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parsing %s row %d: %w", path, row+1, err)
		}
		var coords [3]float64
		for ci, hi := range pos {
			v, err := strconv.ParseFloat(rec[hi], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing %s row %d column %s: %w", path, row+1, columns[ci], err)
			}
			coords[ci] = v
		}
		out = append(out, types.Seed{
			SubjectID: subjectID,
			SeedID:    row,
			X:         coords[0],
			Y:         coords[1],
			Z:         coords[2],
		})
	}
	return out, nil
}
