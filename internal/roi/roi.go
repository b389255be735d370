// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roi extracts voxel coordinates and intensity values from the
// masked region of each subject's image, producing the combined
// coordinate table consumed by downstream covariate modeling.
package roi

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/pdiddy/ibis-pipeline/internal/fsutil"
	"github.com/pdiddy/ibis-pipeline/internal/nifti"
	"github.com/pdiddy/ibis-pipeline/internal/resample"
	"github.com/pdiddy/ibis-pipeline/internal/seeds"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

const outputName = "extracted_coordinates.csv"

// BatchResult summarizes one ROI extraction run.
type BatchResult struct {
	Images   int
	Failed   int
	Rows     int
	NoOutput bool
}

// HasFailures reports whether any image was skipped.
func (r BatchResult) HasFailures() bool { return r.Failed > 0 }

// Run extracts, for every image under inputDir/images, one row per
// active mask voxel: the voxel indices, the image intensity there, and
// the subject id taken from the image file name. All subjects are
// concatenated into outputDir/roi/extracted_coordinates.csv, written
// once. Volumes are released between files; a failing image is logged
// and skipped.
func Run(cfg types.ROIConfig, inputDir, outputDir string, w io.Writer) (BatchResult, error) {
	var result BatchResult

	imageFiles := fsutil.FileList(filepath.Join(inputDir, "images"), ".nii", ".nii.gz")
	maskFiles := fsutil.FileList(filepath.Join(inputDir, "masks"), ".nii", ".nii.gz")
	result.Images = len(imageFiles)
	if len(imageFiles) == 0 || len(maskFiles) == 0 {
		fmt.Fprintln(w, "no images or no masks found; nothing to extract")
		result.NoOutput = true
		return result, nil
	}

	maskVol, err := nifti.Load(maskFiles[0])
	if err != nil {
		return result, fmt.Errorf("loading mask: %w", err)
	}
	mask := resample.FromVolume(maskVol)

	header := append(append([]string{}, cfg.CoordinateColumns...), cfg.IntensityColumn, "sub.id")

	var rows [][]string
	for _, imageFile := range imageFiles {
		subRows, err := extractImage(cfg, imageFile, mask)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", filepath.Base(imageFile), err)
			result.Failed++
			continue
		}
		fmt.Fprintf(w, "done:    %s (%d voxels)\n", filepath.Base(imageFile), len(subRows))
		rows = append(rows, subRows...)
	}

	result.Rows = len(rows)
	if len(rows) == 0 {
		fmt.Fprintln(w, "no ROI rows produced")
		result.NoOutput = true
		return result, nil
	}

	outPath := filepath.Join(outputDir, "roi", outputName)
	if err := fsutil.WriteCSV(outPath, header, rows); err != nil {
		return result, err
	}
	fmt.Fprintf(w, "\nwrote %d rows to %s\n", result.Rows, outPath)
	return result, nil
}

// extractImage loads one subject image and reads it at every active
// voxel of the mask aligned to the image grid. The volume goes out of
// scope on return, so at most one subject image is held at a time.
func extractImage(cfg types.ROIConfig, imageFile string, mask *resample.BoolField) ([][]string, error) {
	subjectID, err := seeds.ExtractSubjectID(imageFile, cfg.SubjectIDPattern)
	if err != nil {
		return nil, err
	}
	img, err := nifti.Load(imageFile)
	if err != nil {
		return nil, err
	}
	aligned, err := resample.Align(mask, resample.Target{Shape: img.Shape, Affine: img.Affine})
	if err != nil {
		return nil, err
	}

	active := aligned.ActiveIndices()
	rows := make([][]string, len(active))
	for n, ijk := range active {
		rows[n] = []string{
			strconv.Itoa(ijk[0]),
			strconv.Itoa(ijk[1]),
			strconv.Itoa(ijk[2]),
			strconv.FormatFloat(img.At(ijk[0], ijk[1], ijk[2]), 'g', -1, 64),
			subjectID,
		}
	}
	return rows, nil
}
