// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bufferzone

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pdiddy/ibis-pipeline/internal/fsutil"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

const (
	coordinatesDir = "coordinates"
	imagesDir      = "images"
	masksDir       = "masks"
	outputName     = "buffer_zone_metrics.csv"
)

// BatchResult summarizes one buffer-zone batch run.
type BatchResult struct {
	Files    int // coordinate files found
	Failed   int // files skipped after an error
	Records  int // rows in the final table
	NoOutput bool
}

// HasFailures reports whether any coordinate file was skipped.
func (r BatchResult) HasFailures() bool { return r.Failed > 0 }

// Run sweeps every coordinate file under inputDir/coordinates against
// the configured radii and writes one consolidated table to
// outputDir/buffer_zone/buffer_zone_metrics.csv. Row order is coordinate
// file (sorted name order), then radius (configured order), then seed
// (file order).
//
// A failure on one coordinate file is logged to w and that file is
// skipped; remaining files still process. When no file yields a record
// the run reports NoOutput instead of failing, and no table is written.
func (a *Analyzer) Run(ctx context.Context, inputDir, outputDir string, w io.Writer) (BatchResult, error) {
	var result BatchResult

	coordFiles := fsutil.FileList(filepath.Join(inputDir, coordinatesDir), ".csv")
	imageFiles := fsutil.FileList(filepath.Join(inputDir, imagesDir), ".nii", ".nii.gz")
	maskFiles := fsutil.FileList(filepath.Join(inputDir, masksDir), ".nii", ".nii.gz")

	result.Files = len(coordFiles)
	if len(coordFiles) == 0 {
		fmt.Fprintln(w, "no coordinate files found")
		result.NoOutput = true
		return result, nil
	}
	if len(maskFiles) == 0 {
		fmt.Fprintln(w, "no mask volumes found")
		result.NoOutput = true
		return result, nil
	}

	pair := Pair{MaskPath: maskFiles[0]}
	if len(imageFiles) > 0 {
		pair.ImagePath = imageFiles[0]
	} else {
		fmt.Fprintln(w, "no image volumes found; extracting voxel counts only")
	}

	radii := a.cfg.Radii()
	var all []types.BufferZoneRecord
	for _, coordFile := range coordFiles {
		fileRecords, err := a.extractSweep(ctx, coordFile, pair, radii)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			fmt.Fprintf(w, "failed:  %s (%v)\n", filepath.Base(coordFile), err)
			result.Failed++
			continue
		}
		fmt.Fprintf(w, "done:    %s (%d records)\n", filepath.Base(coordFile), len(fileRecords))
		all = append(all, fileRecords...)
	}

	result.Records = len(all)
	if len(all) == 0 {
		fmt.Fprintln(w, "no buffer-zone records produced")
		result.NoOutput = true
		return result, nil
	}

	rows := make([][]string, len(all))
	for i, rec := range all {
		rows[i] = rec.Row()
	}
	outPath := filepath.Join(outputDir, "buffer_zone", outputName)
	if err := fsutil.WriteCSV(outPath, types.ResultColumns, rows); err != nil {
		return result, err
	}

	fmt.Fprintf(w, "\nwrote %d records from %d/%d files to %s\n",
		result.Records, result.Files-result.Failed, result.Files, outPath)
	return result, nil
}

// extractSweep runs every configured radius for one coordinate file,
// radius order as configured.
func (a *Analyzer) extractSweep(ctx context.Context, coordFile string, pair Pair, radii []float64) ([]types.BufferZoneRecord, error) {
	var out []types.BufferZoneRecord
	for _, radius := range radii {
		records, err := a.ExtractFile(ctx, coordFile, pair, radius)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}
