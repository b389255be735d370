// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package spatial answers radius queries over the world coordinates of
// active mask voxels. An Index is built once per (image, mask) pair and
// is read-only afterwards; queries may run concurrently.
package spatial

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is one indexed world coordinate with its ordinal in the point
// set handed to NewIndex.
type point struct {
	x, y, z float64
	ord     int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		return p.z - q.z
	}
}

func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, per the kdtree
// convention.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.x - q.x
	dy := p.y - q.y
	dz := p.z - q.z
	return dx*dx + dy*dy + dz*dz
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p points) Pivot(d kdtree.Dim) int {
	return plane{Dim: d, points: p}.Pivot()
}

// plane sorts points along a single dimension for tree construction.
type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].x < p.points[j].x
	case 1:
		return p.points[i].y < p.points[j].y
	default:
		return p.points[i].z < p.points[j].z
	}
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// Index is a radius-searchable kd-tree over world-space points (mm).
type Index struct {
	tree *kdtree.Tree
	n    int
}

// NewIndex builds an index over pts. An empty point set yields a valid
// index whose every query returns no matches.
func NewIndex(pts [][3]float64) *Index {
	if len(pts) == 0 {
		return &Index{}
	}
	ps := make(points, len(pts))
	for i, p := range pts {
		ps[i] = point{x: p[0], y: p[1], z: p[2], ord: i}
	}
	return &Index{tree: kdtree.New(ps, true), n: len(pts)}
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.n }

// Radius returns the ordinals of all indexed points within Euclidean
// distance r (mm) of seed, sorted ascending. A non-positive radius or an
// empty index yields no matches; neither is an error.
func (ix *Index) Radius(seed [3]float64, r float64) []int {
	if ix.tree == nil || r <= 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	ix.tree.NearestSet(keep, point{x: seed[0], y: seed[1], z: seed[2], ord: -1})

	out := make([]int, 0, len(keep.Heap))
	for _, cd := range keep.Heap {
		// The keeper seeds its heap with a nil sentinel at the cutoff.
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(point).ord)
	}
	sort.Ints(out)
	return out
}

// QueryAll resolves a batch of seeds at one radius, fanning out across
// CPUs. Results are position-indexed by seed so output order does not
// depend on scheduling.
func (ix *Index) QueryAll(ctx context.Context, seeds [][3]float64, r float64) ([][]int, error) {
	results := make([][]int, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range seeds {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = ix.Radius(seeds[i], r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
