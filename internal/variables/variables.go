// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package variables extracts per-voxel covariates (Euclidean distance
// transform and variance volumes) from masked regions into one CSV per
// source volume.
package variables

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/ibis-pipeline/internal/fsutil"
	"github.com/pdiddy/ibis-pipeline/internal/nifti"
	"github.com/pdiddy/ibis-pipeline/internal/resample"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// BatchResult summarizes one covariate extraction run.
type BatchResult struct {
	Volumes  int
	Failed   int
	NoOutput bool
}

// HasFailures reports whether any volume was skipped.
func (r BatchResult) HasFailures() bool { return r.Failed > 0 }

// Run extracts the enabled covariate kinds. EDT volumes are read from
// inputDir/edt (suffix _masked.nii.gz), variance volumes from
// inputDir/var; both are sampled at the active voxels of the first mask
// under inputDir/masks and written one CSV per volume below
// outputDir/variables/. One volume is in memory at a time.
func Run(cfg types.VariablesConfig, inputDir, outputDir string, w io.Writer) (BatchResult, error) {
	var result BatchResult

	maskFiles := fsutil.FileList(filepath.Join(inputDir, "masks"), ".nii", ".nii.gz")
	if len(maskFiles) == 0 {
		fmt.Fprintln(w, "no masks found; nothing to extract")
		result.NoOutput = true
		return result, nil
	}
	maskVol, err := nifti.Load(maskFiles[0])
	if err != nil {
		return result, fmt.Errorf("loading mask: %w", err)
	}
	mask := resample.FromVolume(maskVol)
	roiName := roiNameFromMask(maskFiles[0])

	kinds := []struct {
		enabled bool
		dir     string
		suffix  string
		outDir  string
		prefix  string
	}{
		{cfg.EDTEnabled, "edt", "_masked.nii.gz", "edt", "v1_edt_"},
		{cfg.VarEnabled, "var", ".nii", "var", "var_"},
	}

	wrote := 0
	for _, kind := range kinds {
		if !kind.enabled {
			continue
		}
		files := fsutil.FileList(filepath.Join(inputDir, kind.dir), kind.suffix, ".nii.gz")
		for _, file := range files {
			result.Volumes++
			name := volumeName(file)
			outPath := filepath.Join(outputDir, "variables", kind.outDir,
				fmt.Sprintf("%s%s_%s.csv", kind.prefix, name, roiName))
			if err := extractVolume(file, mask, outPath); err != nil {
				fmt.Fprintf(w, "failed:  %s (%v)\n", filepath.Base(file), err)
				result.Failed++
				continue
			}
			fmt.Fprintf(w, "done:    %s\n", filepath.Base(file))
			wrote++
		}
	}

	if wrote == 0 {
		fmt.Fprintln(w, "no covariate volumes extracted")
		result.NoOutput = true
	}
	return result, nil
}

// extractVolume samples one covariate volume at the mask's active voxels
// and writes X,Y,Z,Value rows. The volume is released on return.
func extractVolume(file string, mask *resample.BoolField, outPath string) error {
	vol, err := nifti.Load(file)
	if err != nil {
		return err
	}
	aligned, err := resample.Align(mask, resample.Target{Shape: vol.Shape, Affine: vol.Affine})
	if err != nil {
		return err
	}

	active := aligned.ActiveIndices()
	rows := make([][]string, len(active))
	for n, ijk := range active {
		rows[n] = []string{
			strconv.Itoa(ijk[0]),
			strconv.Itoa(ijk[1]),
			strconv.Itoa(ijk[2]),
			strconv.FormatFloat(vol.At(ijk[0], ijk[1], ijk[2]), 'g', -1, 64),
		}
	}
	return fsutil.WriteCSV(outPath, []string{"X", "Y", "Z", "Value"}, rows)
}

// volumeName strips the NIfTI suffixes from a file name.
func volumeName(file string) string {
	name := filepath.Base(file)
	for _, suf := range []string{"_masked.nii.gz", ".nii.gz", ".nii"} {
		if strings.HasSuffix(name, suf) {
			return strings.TrimSuffix(name, suf)
		}
	}
	return name
}

// roiNameFromMask derives the region label from the mask file name
// (leading token before the first underscore).
func roiNameFromMask(maskFile string) string {
	base := volumeName(maskFile)
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}
