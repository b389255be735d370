// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resample aligns a mask's voxel grid to a target image grid.
// Masks are categorical, so only nearest-neighbour interpolation is ever
// used; any smoothing interpolation would fabricate fractional membership.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/pdiddy/ibis-pipeline/internal/geometry"
	"github.com/pdiddy/ibis-pipeline/internal/nifti"
)

// ErrShapeMismatch reports that resampling was required but the target
// grid (affine and shape) was absent. Per-pair error: the batch skips
// the pair and continues.
var ErrShapeMismatch = errors.New("resample: mask grid differs from image grid and no target grid was given")

// affineTol is the elementwise tolerance below which two grids are
// considered identical and alignment is a no-op.
const affineTol = 1e-6

// BoolField is a boolean domain over a voxel grid. Voxel (i,j,k) is
// active when Active[i + nx*(j + ny*k)] is true.
type BoolField struct {
	Shape  [3]int
	Affine geometry.Affine
	Active []bool
}

// FromVolume builds a BoolField from a mask volume with nonzero-is-true
// semantics.
func FromVolume(v *nifti.Volume) *BoolField {
	active := make([]bool, len(v.Data))
	for i, val := range v.Data {
		active[i] = val != 0
	}
	return &BoolField{Shape: v.Shape, Affine: v.Affine, Active: active}
}

// NumActive returns the number of active voxels.
func (f *BoolField) NumActive() int {
	n := 0
	for _, a := range f.Active {
		if a {
			n++
		}
	}
	return n
}

// ActiveIndices returns the voxel indices of all active voxels in flat
// scan order (x fastest). The order is deterministic and matches the
// intensity extraction order used by the aggregator.
func (f *BoolField) ActiveIndices() [][3]int {
	var out [][3]int
	idx := 0
	for k := 0; k < f.Shape[2]; k++ {
		for j := 0; j < f.Shape[1]; j++ {
			for i := 0; i < f.Shape[0]; i++ {
				if f.Active[idx] {
					out = append(out, [3]int{i, j, k})
				}
				idx++
			}
		}
	}
	return out
}

// Target describes the grid a mask must be aligned to.
type Target struct {
	Shape  [3]int
	Affine geometry.Affine
}

// Align returns mask on the target grid. When the grids already agree
// the mask is returned unchanged. Otherwise each target voxel takes the
// value of the nearest source mask voxel (pullback through the target
// affine and the inverse source affine); target voxels that map outside
// the source grid are inactive.
func Align(mask *BoolField, target Target) (*BoolField, error) {
	if mask.Shape == target.Shape && mask.Affine.Equal(target.Affine, affineTol) {
		return mask, nil
	}
	if target.Shape[0] <= 0 || target.Shape[1] <= 0 || target.Shape[2] <= 0 {
		return nil, ErrShapeMismatch
	}

	srcInv, err := mask.Affine.Inverse()
	if err != nil {
		return nil, fmt.Errorf("inverting mask affine: %w", err)
	}

	out := &BoolField{
		Shape:  target.Shape,
		Affine: target.Affine,
		Active: make([]bool, target.Shape[0]*target.Shape[1]*target.Shape[2]),
	}

	idx := 0
	for k := 0; k < target.Shape[2]; k++ {
		for j := 0; j < target.Shape[1]; j++ {
			for i := 0; i < target.Shape[0]; i++ {
				x, y, z := target.Affine.Apply(float64(i), float64(j), float64(k))
				si, sj, sk := srcInv.Apply(x, y, z)
				ri := int(math.Round(si))
				rj := int(math.Round(sj))
				rk := int(math.Round(sk))
				if ri >= 0 && ri < mask.Shape[0] &&
					rj >= 0 && rj < mask.Shape[1] &&
					rk >= 0 && rk < mask.Shape[2] {
					out.Active[idx] = mask.Active[ri+mask.Shape[0]*(rj+mask.Shape[1]*rk)]
				}
				idx++
			}
		}
	}
	return out, nil
}
