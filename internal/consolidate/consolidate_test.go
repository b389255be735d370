// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package consolidate

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

func writeTable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readTable(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func dropConfig() types.ConsolidationConfig {
	return types.ConsolidationConfig{HandleMissing: types.MissingDrop}
}

func TestRunConsolidatesCovariateTree(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")

	writeTable(t, filepath.Join(out, "variables", "edt", "v1_edt_volA_roi.csv"),
		"X,Y,Z,Value\n1,2,3,10\n4,5,6,20\n")
	writeTable(t, filepath.Join(out, "variables", "edt", "v1_edt_volB_roi.csv"),
		"X,Y,Z,Value\n1,2,3,100\n4,5,6,200\n")

	var log bytes.Buffer
	sum, err := Run(dropConfig(), filepath.Join(root, "input"), out, &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sources != 2 || sum.Failed != 0 {
		t.Errorf("summary = %+v, want 2 clean sources", sum)
	}

	table := readTable(t, filepath.Join(out, "consolidated", "edt_consolidated.csv"))
	wantHeader := []string{"i", "j", "k", "volA_roi", "volB_roi"}
	if !reflect.DeepEqual(table[0], wantHeader) {
		t.Fatalf("header = %v, want %v", table[0], wantHeader)
	}
	if len(table) != 3 {
		t.Fatalf("got %d data rows, want 2", len(table)-1)
	}
	if !reflect.DeepEqual(table[1], []string{"1", "2", "3", "10", "100"}) {
		t.Errorf("first row = %v", table[1])
	}

	// Combined table carries the same labels once.
	combined := readTable(t, filepath.Join(out, "consolidated", "cov_all_consolidated.csv"))
	if !reflect.DeepEqual(combined[0], wantHeader) {
		t.Errorf("combined header = %v, want %v", combined[0], wantHeader)
	}
}

func TestRunDropsShortRows(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")

	writeTable(t, filepath.Join(out, "variables", "var", "var_long.csv"),
		"X,Y,Z,Value\n1,1,1,1\n2,2,2,2\n3,3,3,3\n")
	writeTable(t, filepath.Join(out, "variables", "var", "var_short.csv"),
		"X,Y,Z,Value\n1,1,1,9\n")

	var log bytes.Buffer
	if _, err := Run(dropConfig(), filepath.Join(root, "input"), out, &log); err != nil {
		t.Fatalf("Run: %v", err)
	}

	table := readTable(t, filepath.Join(out, "consolidated", "var_consolidated.csv"))
	if len(table)-1 != 1 {
		t.Errorf("drop policy kept %d rows, want 1 (the shared prefix)", len(table)-1)
	}
}

func TestRunFillsMissingValues(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")

	writeTable(t, filepath.Join(out, "variables", "var", "var_long.csv"),
		"X,Y,Z,Value\n1,1,1,1\n2,2,2,2\n")
	writeTable(t, filepath.Join(out, "variables", "var", "var_short.csv"),
		"X,Y,Z,Value\n1,1,1,9\n")

	cfg := types.ConsolidationConfig{HandleMissing: types.MissingFill, FillValue: -1}
	var log bytes.Buffer
	if _, err := Run(cfg, filepath.Join(root, "input"), out, &log); err != nil {
		t.Fatalf("Run: %v", err)
	}

	table := readTable(t, filepath.Join(out, "consolidated", "var_consolidated.csv"))
	if len(table)-1 != 2 {
		t.Fatalf("fill policy kept %d rows, want 2", len(table)-1)
	}
	last := table[len(table)-1]
	if last[len(last)-1] != "-1" {
		t.Errorf("missing cell = %q, want -1", last[len(last)-1])
	}
}

func TestRunSkipsMalformedSource(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "output")

	writeTable(t, filepath.Join(out, "variables", "edt", "v1_edt_good.csv"),
		"X,Y,Z,Value\n1,1,1,5\n")
	writeTable(t, filepath.Join(out, "variables", "edt", "v1_edt_bad.csv"),
		"A,B\n1,2\n")

	var log bytes.Buffer
	sum, err := Run(dropConfig(), filepath.Join(root, "input"), out, &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 || !sum.HasFailures() {
		t.Errorf("Failed = %d, want 1", sum.Failed)
	}
	if !bytes.Contains(log.Bytes(), []byte("failed:")) {
		t.Error("log does not mention the skipped file")
	}

	table := readTable(t, filepath.Join(out, "consolidated", "edt_consolidated.csv"))
	if !reflect.DeepEqual(table[0], []string{"i", "j", "k", "good"}) {
		t.Errorf("header = %v", table[0])
	}
}

func TestRunNoSources(t *testing.T) {
	root := t.TempDir()

	var log bytes.Buffer
	sum, err := Run(dropConfig(), filepath.Join(root, "input"), filepath.Join(root, "output"), &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.NoOutput {
		t.Error("empty tree should report NoOutput")
	}
}

func TestReadColumnPrefersNamedValueColumn(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "metrics.csv")
	writeTable(t, path,
		"seed_id,x,y,z,radius_mm,voxel_count,mean_value,std_value,max_value,min_value,subject_id\n"+
			"0,1,2,3,5,7,2.5,0,3,2,1234\n")

	col, err := readColumn(path, "")
	if err != nil {
		t.Fatalf("readColumn: %v", err)
	}
	if len(col.values) != 1 || col.values[0] != 2.5 {
		t.Errorf("values = %v, want [2.5] from mean_value", col.values)
	}
	if col.coords[0] != [3]int{1, 2, 3} {
		t.Errorf("coords = %v, want [1 2 3]", col.coords[0])
	}
}
