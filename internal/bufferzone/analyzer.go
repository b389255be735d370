// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bufferzone

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/ibis-pipeline/internal/nifti"
	"github.com/pdiddy/ibis-pipeline/internal/resample"
	"github.com/pdiddy/ibis-pipeline/internal/seeds"
	"github.com/pdiddy/ibis-pipeline/internal/spatial"
	"github.com/pdiddy/ibis-pipeline/pkg/types"
)

// Pair identifies one image/mask combination. ImagePath may be empty for
// coordinate-only extraction (the mask alone defines the domain and no
// intensity statistics are computed).
type Pair struct {
	ImagePath string
	MaskPath  string
}

func (p Pair) key() string { return p.ImagePath + "|" + p.MaskPath }

// pairIndex is the built spatial index of one Pair together with the
// intensity at each indexed voxel (nil in coordinate-only mode). Both
// are read-only after construction.
type pairIndex struct {
	index  *spatial.Index
	values []float64
}

// Analyzer extracts buffer-zone records. Spatial indexes are cached per
// Pair with build-once-read-many discipline: concurrent requests for the
// same pair share a single build, and a subject's pair is reused across
// every seed and radius in a batch pass. There is no eviction; a pair is
// used at most once per pass.
type Analyzer struct {
	cfg types.BufferZoneConfig

	mu    sync.RWMutex
	cache map[string]*pairIndex
	group singleflight.Group
}

// NewAnalyzer returns an Analyzer with an empty index cache. The
// AllowOverlap flag in cfg is carried but not consulted (reserved).
func NewAnalyzer(cfg types.BufferZoneConfig) *Analyzer {
	return &Analyzer{
		cfg:   cfg,
		cache: make(map[string]*pairIndex),
	}
}

// pairFor returns the cached index for pair, building it at most once
// even under concurrent callers.
func (a *Analyzer) pairFor(pair Pair) (*pairIndex, error) {
	key := pair.key()

	a.mu.RLock()
	pi := a.cache[key]
	a.mu.RUnlock()
	if pi != nil {
		return pi, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		a.mu.RLock()
		pi := a.cache[key]
		a.mu.RUnlock()
		if pi != nil {
			return pi, nil
		}
		pi, err := buildPair(pair)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cache[key] = pi
		a.mu.Unlock()
		return pi, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pairIndex), nil
}

// buildPair loads the volumes, aligns the mask to the image grid, and
// indexes the world coordinates of the active voxels.
func buildPair(pair Pair) (*pairIndex, error) {
	if pair.MaskPath == "" {
		return nil, fmt.Errorf("bufferzone: no mask volume for pair")
	}
	maskVol, err := nifti.Load(pair.MaskPath)
	if err != nil {
		return nil, fmt.Errorf("loading mask: %w", err)
	}
	mask := resample.FromVolume(maskVol)

	var img *nifti.Volume
	if pair.ImagePath != "" {
		img, err = nifti.Load(pair.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("loading image: %w", err)
		}
		mask, err = resample.Align(mask, resample.Target{Shape: img.Shape, Affine: img.Affine})
		if err != nil {
			return nil, fmt.Errorf("aligning mask to image grid: %w", err)
		}
	}

	active := mask.ActiveIndices()
	world := mask.Affine.VoxelsToWorld(active)

	var values []float64
	if img != nil {
		values = make([]float64, len(active))
		for n, ijk := range active {
			values[n] = img.At(ijk[0], ijk[1], ijk[2])
		}
	}

	return &pairIndex{index: spatial.NewIndex(world), values: values}, nil
}

// ExtractFile produces the records for one coordinate file at one
// radius: seed order is preserved and seeds with empty spheres are
// silently dropped. Queries over seeds run concurrently against the
// shared read-only index.
func (a *Analyzer) ExtractFile(ctx context.Context, coordPath string, pair Pair, radius float64) ([]types.BufferZoneRecord, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("bufferzone: non-positive radius %v", radius)
	}

	subjectID, err := seeds.ExtractSubjectID(coordPath, a.cfg.SubjectIDPattern)
	if err != nil {
		return nil, err
	}
	seedList, err := seeds.ReadFile(coordPath, seeds.DefaultColumns, subjectID)
	if err != nil {
		return nil, err
	}
	if len(seedList) == 0 {
		return nil, nil
	}

	pi, err := a.pairFor(pair)
	if err != nil {
		return nil, err
	}

	coords := make([][3]float64, len(seedList))
	for i, s := range seedList {
		coords[i] = [3]float64{s.X, s.Y, s.Z}
	}
	matches, err := pi.index.QueryAll(ctx, coords, radius)
	if err != nil {
		return nil, err
	}

	records := make([]types.BufferZoneRecord, 0, len(seedList))
	for i, s := range seedList {
		if rec, ok := Aggregate(s, radius, matches[i], pi.values); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
