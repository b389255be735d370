// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package geometry maps voxel grid indices to physical (millimetre)
// coordinates and back through 4x4 affine transforms.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularAffine reports a voxel-to-world transform that cannot be
// inverted. This is a fatal configuration error for the volume carrying
// the transform.
var ErrSingularAffine = errors.New("geometry: singular affine transform")

// Affine is a 4x4 voxel-index to world-mm transform. The zero value is
// not usable; construct with NewAffine, Identity, or Diagonal.
type Affine struct {
	m *mat.Dense
}

// NewAffine builds an Affine from 16 row-major elements.
func NewAffine(elems [16]float64) Affine {
	return Affine{m: mat.NewDense(4, 4, elems[:])}
}

// Identity returns the identity transform (world == voxel indices).
func Identity() Affine {
	return Diagonal(1, 1, 1)
}

// Diagonal returns a scaling transform with the given voxel spacings in
// mm along each axis and zero translation.
func Diagonal(sx, sy, sz float64) Affine {
	return NewAffine([16]float64{
		sx, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, sz, 0,
		0, 0, 0, 1,
	})
}

// Translated returns a copy of a with its translation column set.
func (a Affine) Translated(tx, ty, tz float64) Affine {
	out := mat.DenseCopyOf(a.m)
	out.Set(0, 3, tx)
	out.Set(1, 3, ty)
	out.Set(2, 3, tz)
	return Affine{m: out}
}

// At returns the element at row i, column j.
func (a Affine) At(i, j int) float64 {
	return a.m.At(i, j)
}

// Apply maps one voxel index triple to world coordinates.
func (a Affine) Apply(i, j, k float64) (x, y, z float64) {
	x = a.m.At(0, 0)*i + a.m.At(0, 1)*j + a.m.At(0, 2)*k + a.m.At(0, 3)
	y = a.m.At(1, 0)*i + a.m.At(1, 1)*j + a.m.At(1, 2)*k + a.m.At(1, 3)
	z = a.m.At(2, 0)*i + a.m.At(2, 1)*j + a.m.At(2, 2)*k + a.m.At(2, 3)
	return x, y, z
}

// VoxelsToWorld maps a batch of voxel indices to world coordinates,
// preserving order. The input is not modified.
func (a Affine) VoxelsToWorld(indices [][3]int) [][3]float64 {
	out := make([][3]float64, len(indices))
	for n, idx := range indices {
		x, y, z := a.Apply(float64(idx[0]), float64(idx[1]), float64(idx[2]))
		out[n] = [3]float64{x, y, z}
	}
	return out
}

// Inverse returns the world-to-voxel transform, or ErrSingularAffine
// when the matrix cannot be inverted.
func (a Affine) Inverse() (Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.m); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrSingularAffine, err)
	}
	return Affine{m: &inv}, nil
}

// Equal reports whether two transforms agree elementwise within tol.
func (a Affine) Equal(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a.m.At(i, j)-b.m.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}

// String renders the transform row by row, for diagnostics.
func (a Affine) String() string {
	return fmt.Sprintf("%.6g", mat.Formatted(a.m))
}
