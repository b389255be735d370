// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileListSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := FileList(dir, ".csv")
	want := []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FileList = %v, want %v", got, want)
	}
}

func TestFileListMissingDir(t *testing.T) {
	if got := FileList(filepath.Join(t.TempDir(), "absent")); got != nil {
		t.Errorf("missing dir: got %v, want nil", got)
	}
}

func TestWriteCSVCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "out.csv")

	err := WriteCSV(path, []string{"a", "b"}, [][]string{{"1", "2"}, {"3", "4"}})
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("table = %v, want %v", recs, want)
	}
}

func TestWriteCSVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	if err := WriteCSV(path, []string{"a"}, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.csv" {
		t.Errorf("directory contents = %v, want only out.csv", entries)
	}
}
