// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bufferzone

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pdiddy/ibis-pipeline/internal/geometry"
	"github.com/pdiddy/ibis-pipeline/internal/nifti"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// fixtureTree writes a minimal input layout: one 5x5x5 all-active mask
// and a constant-intensity image on the identity grid.
func fixtureTree(t *testing.T, withImage bool) (inputDir, outputDir string) {
	t.Helper()
	root := t.TempDir()
	inputDir = filepath.Join(root, "input")
	outputDir = filepath.Join(root, "output")
	for _, d := range []string{coordinatesDir, imagesDir, masksDir} {
		if err := os.MkdirAll(filepath.Join(inputDir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	shape := [3]int{5, 5, 5}
	n := shape[0] * shape[1] * shape[2]

	mask := &nifti.Volume{Shape: shape, Affine: geometry.Identity(), Data: make([]float64, n)}
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	if err := nifti.Save(filepath.Join(inputDir, masksDir, "mask.nii.gz"), mask); err != nil {
		t.Fatal(err)
	}

	if withImage {
		img := &nifti.Volume{Shape: shape, Affine: geometry.Identity(), Data: make([]float64, n)}
		for i := range img.Data {
			img.Data[i] = 2
		}
		if err := nifti.Save(filepath.Join(inputDir, imagesDir, "img_1234.nii.gz"), img); err != nil {
			t.Fatal(err)
		}
	}
	return inputDir, outputDir
}

func writeCoords(t *testing.T, inputDir, name, content string) {
	t.Helper()
	path := filepath.Join(inputDir, coordinatesDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig() types.BufferZoneConfig {
	cfg := types.DefaultConfig().BufferZone
	cfg.DefaultRadius = 1.0
	return cfg
}

func readTable(t *testing.T, outputDir string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(outputDir, "buffer_zone", outputName))
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

func TestExtractFileConstantImage(t *testing.T) {
	inputDir, _ := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n")

	a := NewAnalyzer(testConfig())
	pair := Pair{
		ImagePath: filepath.Join(inputDir, imagesDir, "img_1234.nii.gz"),
		MaskPath:  filepath.Join(inputDir, masksDir, "mask.nii.gz"),
	}
	records, err := a.ExtractFile(context.Background(),
		filepath.Join(inputDir, coordinatesDir, "sub_1234.csv"), pair, 1.0)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	// Radius 1.0 around the grid centre catches the voxel itself and its
	// six face neighbours.
	if rec.VoxelCount != 7 {
		t.Errorf("voxel count = %d, want 7", rec.VoxelCount)
	}
	if rec.MeanValue != 2 || rec.MaxValue != 2 || rec.MinValue != 2 || rec.StdValue != 0 {
		t.Errorf("constant image: stats = (%v,%v,%v,%v), want (2,0,2,2)",
			rec.MeanValue, rec.StdValue, rec.MaxValue, rec.MinValue)
	}
	if rec.SubjectID != "1234" {
		t.Errorf("subject = %q, want 1234", rec.SubjectID)
	}
}

func TestExtractFileCoordinateOnly(t *testing.T) {
	inputDir, _ := fixtureTree(t, false)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n")

	a := NewAnalyzer(testConfig())
	pair := Pair{MaskPath: filepath.Join(inputDir, masksDir, "mask.nii.gz")}
	records, err := a.ExtractFile(context.Background(),
		filepath.Join(inputDir, coordinatesDir, "sub_1234.csv"), pair, 1.0)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].VoxelCount != 7 {
		t.Errorf("voxel count = %d, want 7", records[0].VoxelCount)
	}
	if records[0].HasValues() {
		t.Error("coordinate-only extraction should not carry statistics")
	}
}

func TestExtractFileSeedOutsideMask(t *testing.T) {
	inputDir, _ := fixtureTree(t, true)
	// Second seed is far outside the grid: its sphere is empty and it
	// contributes no row, while the first seed still does.
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n500,500,500\n")

	a := NewAnalyzer(testConfig())
	pair := Pair{
		ImagePath: filepath.Join(inputDir, imagesDir, "img_1234.nii.gz"),
		MaskPath:  filepath.Join(inputDir, masksDir, "mask.nii.gz"),
	}
	records, err := a.ExtractFile(context.Background(),
		filepath.Join(inputDir, coordinatesDir, "sub_1234.csv"), pair, 1.0)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].SeedID != 0 {
		t.Errorf("surviving seed id = %d, want 0", records[0].SeedID)
	}
}

func TestExtractFileRejectsNonPositiveRadius(t *testing.T) {
	inputDir, _ := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n")

	a := NewAnalyzer(testConfig())
	pair := Pair{MaskPath: filepath.Join(inputDir, masksDir, "mask.nii.gz")}
	coordPath := filepath.Join(inputDir, coordinatesDir, "sub_1234.csv")

	if _, err := a.ExtractFile(context.Background(), coordPath, pair, 0); err == nil {
		t.Error("radius 0 accepted")
	}
	if _, err := a.ExtractFile(context.Background(), coordPath, pair, -2); err == nil {
		t.Error("negative radius accepted")
	}
}

func TestOverlapFlagDoesNotChangeResults(t *testing.T) {
	inputDir, _ := fixtureTree(t, true)
	// Two seeds 1mm apart: their radius-1 spheres share voxels.
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n3,2,2\n")

	pair := Pair{
		ImagePath: filepath.Join(inputDir, imagesDir, "img_1234.nii.gz"),
		MaskPath:  filepath.Join(inputDir, masksDir, "mask.nii.gz"),
	}
	coordPath := filepath.Join(inputDir, coordinatesDir, "sub_1234.csv")

	extract := func(allowOverlap bool) []types.BufferZoneRecord {
		cfg := testConfig()
		cfg.AllowOverlap = allowOverlap
		records, err := NewAnalyzer(cfg).ExtractFile(context.Background(), coordPath, pair, 1.0)
		if err != nil {
			t.Fatalf("ExtractFile: %v", err)
		}
		return records
	}

	with := extract(true)
	without := extract(false)
	if !reflect.DeepEqual(with, without) {
		t.Error("overlap flag changed extraction results")
	}
	if len(with) != 2 {
		t.Fatalf("got %d records, want 2", len(with))
	}
	// Both spheres include the voxel between the seeds.
	if with[0].VoxelCount != 7 || with[1].VoxelCount != 7 {
		t.Errorf("voxel counts = (%d, %d), want (7, 7)", with[0].VoxelCount, with[1].VoxelCount)
	}
}

func TestRunWritesTableInOrder(t *testing.T) {
	inputDir, outputDir := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n1,1,1\n")
	writeCoords(t, inputDir, "sub_5678.csv", "X,Y,Z\n3,3,3\n")

	cfg := testConfig()
	cfg.RadiusOptions = []float64{2, 1} // configured order, not sorted

	var log bytes.Buffer
	result, err := NewAnalyzer(cfg).Run(context.Background(), inputDir, outputDir, &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 0 || result.NoOutput {
		t.Fatalf("result = %+v, want clean run", result)
	}

	table := readTable(t, outputDir)
	if !reflect.DeepEqual(table[0], types.ResultColumns) {
		t.Fatalf("header = %v", table[0])
	}

	// file order, then radius order, then seed order.
	type key struct{ subject, radius, seed string }
	var got []key
	for _, row := range table[1:] {
		got = append(got, key{subject: row[10], radius: row[4], seed: row[0]})
	}
	want := []key{
		{"1234", "2", "0"},
		{"1234", "2", "1"},
		{"1234", "1", "0"},
		{"1234", "1", "1"},
		{"5678", "2", "0"},
		{"5678", "1", "0"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("row order = %v, want %v", got, want)
	}
}

func TestRunSkipsCorruptFile(t *testing.T) {
	inputDir, outputDir := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n")
	writeCoords(t, inputDir, "sub_5678.csv", "X,Y\n1,2\n") // missing Z

	var log bytes.Buffer
	result, err := NewAnalyzer(testConfig()).Run(context.Background(), inputDir, outputDir, &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 || !result.HasFailures() {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}

	table := readTable(t, outputDir)
	if len(table) != 2 { // header + one surviving record
		t.Fatalf("table has %d rows, want 2", len(table))
	}
	if table[1][10] != "1234" {
		t.Errorf("surviving subject = %q, want 1234", table[1][10])
	}
	if !bytes.Contains(log.Bytes(), []byte("failed:")) {
		t.Error("log does not mention the failed file")
	}
}

func TestRunNoCoordinates(t *testing.T) {
	inputDir, outputDir := fixtureTree(t, true)

	var log bytes.Buffer
	result, err := NewAnalyzer(testConfig()).Run(context.Background(), inputDir, outputDir, &log)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.NoOutput {
		t.Error("empty coordinate set should report NoOutput")
	}
	if _, err := os.Stat(filepath.Join(outputDir, "buffer_zone", outputName)); !os.IsNotExist(err) {
		t.Error("no table should be written without input")
	}
}

func TestExtractFileAnisotropicSpacing(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "input")
	for _, d := range []string{coordinatesDir, masksDir} {
		if err := os.MkdirAll(filepath.Join(inputDir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	// 3mm slice spacing along z: at radius 1.5 the in-plane neighbours
	// are inside the sphere but the adjacent slice (3mm away) is not.
	shape := [3]int{5, 5, 5}
	mask := &nifti.Volume{
		Shape:  shape,
		Affine: geometry.Diagonal(1, 1, 3),
		Data:   make([]float64, 125),
	}
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	maskPath := filepath.Join(inputDir, masksDir, "mask.nii.gz")
	if err := nifti.Save(maskPath, mask); err != nil {
		t.Fatal(err)
	}

	// Seed at the world position of voxel (2,2,2).
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,6\n")

	a := NewAnalyzer(testConfig())
	records, err := a.ExtractFile(context.Background(),
		filepath.Join(inputDir, coordinatesDir, "sub_1234.csv"),
		Pair{MaskPath: maskPath}, 1.5)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	// Centre, 4 in-plane face neighbours, and 4 in-plane diagonals at
	// sqrt(2) mm; nothing along z. Distances are physical, not index steps.
	if records[0].VoxelCount != 9 {
		t.Errorf("voxel count = %d, want 9", records[0].VoxelCount)
	}
}

func TestRunDeterministicOutput(t *testing.T) {
	inputDir, outputDir := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n1,1,1\n3,3,3\n")
	writeCoords(t, inputDir, "sub_5678.csv", "X,Y,Z\n2,1,2\n")

	cfg := testConfig()
	cfg.RadiusOptions = []float64{1, 2}

	run := func() []byte {
		var log bytes.Buffer
		if _, err := NewAnalyzer(cfg).Run(context.Background(), inputDir, outputDir, &log); err != nil {
			t.Fatalf("Run: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(outputDir, "buffer_zone", outputName))
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	if !bytes.Equal(run(), run()) {
		t.Error("two identical runs produced different tables")
	}
}

func TestPairIndexBuiltOnce(t *testing.T) {
	inputDir, _ := fixtureTree(t, true)
	writeCoords(t, inputDir, "sub_1234.csv", "X,Y,Z\n2,2,2\n")

	a := NewAnalyzer(testConfig())
	pair := Pair{
		ImagePath: filepath.Join(inputDir, imagesDir, "img_1234.nii.gz"),
		MaskPath:  filepath.Join(inputDir, masksDir, "mask.nii.gz"),
	}

	first, err := a.pairFor(pair)
	if err != nil {
		t.Fatalf("pairFor: %v", err)
	}
	second, err := a.pairFor(pair)
	if err != nil {
		t.Fatalf("pairFor: %v", err)
	}
	if first != second {
		t.Error("same pair should reuse the cached index")
	}
}
