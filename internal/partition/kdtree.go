package partition

import (
	"sort"
	"sync"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// KDStrategy recursively bisects the model AABB at the median of the
// contained triangles' centroids, alternating split axis X→Y→Z→X... with
// depth, per spec.md §4.4.3. Like OctreeStrategy, the full tree is built
// once and cached, then filtered by level on each call.
type KDStrategy struct {
	cfg Config

	once   sync.Once
	leaves []TileDescriptor
}

func (s *KDStrategy) ensureBuilt(modelAABB geom.AABB, counter TriangleCounter, cancel <-chan struct{}) {
	s.once.Do(func() {
		s.leaves = buildKDTree(modelAABB, counter, s.cfg, cancel)
	})
}

func (s *KDStrategy) GenerateTiles(level int, modelAABB geom.AABB, counter TriangleCounter, cancel <-chan struct{}) []TileDescriptor {
	s.ensureBuilt(modelAABB, counter, cancel)

	var out []TileDescriptor
	for _, leaf := range s.leaves {
		if leaf.Coord.Level == level {
			out = append(out, leaf)
		}
	}
	return out
}

// EstimateCount returns an upper bound (2^level), since a KD-tree split is
// strictly binary per depth.
func (s *KDStrategy) EstimateCount(level int) int {
	return 1 << uint(level)
}

func buildKDTree(modelAABB geom.AABB, counter TriangleCounter, cfg Config, cancel <-chan struct{}) []TileDescriptor {
	var leaves []TileDescriptor

	var recurse func(box geom.AABB, depth int, parent *TileCoord, cx, cy, cz int, path string)
	recurse = func(box geom.AABB, depth int, parent *TileCoord, cx, cy, cz int, path string) {
		select {
		case <-cancel:
			return
		default:
		}

		samples := counter.TrianglesInAABB(box)
		count := len(samples)

		stop := depth >= maxOctreeDepth ||
			count < minPerTile ||
			(count < maxPerTileSoft && depth >= cfg.MaxLevel)

		if stop {
			if count == 0 {
				return
			}
			leaves = append(leaves, TileDescriptor{
				Coord:   TileCoord{Level: depth, X: cx, Y: cy, Z: cz},
				AABB:    box,
				Parent:  parent,
				PathTag: path,
			})
			return
		}

		axis := depth % 3
		median := medianCentroidComponent(samples, axis)

		coord := TileCoord{Level: depth, X: cx, Y: cy, Z: cz}

		loBox, hiBox := splitAABB(box, axis, median)

		recurse(loBox, depth+1, &coord, cx*2, cy*2, cz*2, path+".0")
		recurse(hiBox, depth+1, &coord, cx*2+1, cy*2+1, cz*2+1, path+".1")
	}

	recurse(modelAABB, 0, nil, 0, 0, 0, "0")
	return leaves
}

// medianCentroidComponent returns the median value of samples' centroid
// components along axis (0=X, 1=Y, 2=Z). Falls back to the midpoint of the
// single value if there's exactly one sample.
func medianCentroidComponent(samples []TriangleSample, axis int) float64 {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.Centroid.Component(axis)
	}
	sort.Float64s(vals)
	n := len(vals)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// splitAABB divides box into two halves along axis at the given split
// coordinate, clamped to remain inside box so degenerate/out-of-range
// medians never invert the resulting bounds.
func splitAABB(box geom.AABB, axis int, split float64) (lo, hi geom.AABB) {
	min, max := box.Min.Component(axis), box.Max.Component(axis)
	if split < min {
		split = min
	}
	if split > max {
		split = max
	}

	lo, hi = box, box
	lo.Max = setComponent(lo.Max, axis, split)
	hi.Min = setComponent(hi.Min, axis, split)
	return
}

func setComponent(v geom.Vec3, axis int, value float64) geom.Vec3 {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}
