// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package nifti loads NIfTI-1 volumes (.nii and .nii.gz) into memory.
// Only what the pipeline needs is implemented: the 348-byte header, the
// common scalar datatypes, slope/intercept scaling, and the voxel-to-world
// affine (sform preferred, then qform, then pixdim spacing).
package nifti

import (
	"github.com/pdiddy/ibis-pipeline/internal/geometry"
)

// Volume is an immutable 3-D scalar field. Data is stored in on-disk
// order: the x index varies fastest, so voxel (i,j,k) lives at
// i + nx*(j + ny*k). For 4-D files the first timepoint is loaded.
type Volume struct {
	Shape  [3]int
	Affine geometry.Affine
	Data   []float64
}

// NumVoxels returns the total voxel count.
func (v *Volume) NumVoxels() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// Offset returns the flat Data offset of voxel (i,j,k). Bounds are the
// caller's responsibility.
func (v *Volume) Offset(i, j, k int) int {
	return i + v.Shape[0]*(j+v.Shape[1]*k)
}

// At returns the intensity at voxel (i,j,k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Offset(i, j, k)]
}

// InBounds reports whether (i,j,k) lies on the grid.
func (v *Volume) InBounds(i, j, k int) bool {
	return i >= 0 && i < v.Shape[0] &&
		j >= 0 && j < v.Shape[1] &&
		k >= 0 && k < v.Shape[2]
}
