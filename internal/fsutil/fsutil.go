// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fsutil holds the small filesystem helpers shared by the
// pipeline stages.
package fsutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileList returns the files directly under dir whose names end in one
// of the given suffixes, sorted by name. A missing directory yields an
// empty list, not an error. No suffixes means every regular file.
func FileList(dir string, suffixes ...string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(suffixes) == 0 {
			out = append(out, filepath.Join(dir, e.Name()))
			continue
		}
		for _, suf := range suffixes {
			if strings.HasSuffix(e.Name(), suf) {
				out = append(out, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// WriteCSV writes a table to path in one shot: the rows go to a
// temporary file in the destination directory which is renamed over
// path on success, so a partially written table is never observable.
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".table-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	if writeErr == nil {
		writeErr = w.WriteAll(rows)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	closeErr := tmp.Close()

	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
