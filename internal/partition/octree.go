package partition

import (
	"strconv"
	"sync"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// OctreeStrategy recursively subdivides the model AABB into 8 children per
// node, per spec.md §4.4.2. The full tree is built once (on the first
// GenerateTiles call, regardless of which level is requested) and cached;
// subsequent calls filter the cached leaves by level, since octree leaves
// naturally terminate at varying depths.
type OctreeStrategy struct {
	cfg Config

	once   sync.Once
	leaves []TileDescriptor
}

func (s *OctreeStrategy) ensureBuilt(modelAABB geom.AABB, counter TriangleCounter, cancel <-chan struct{}) {
	s.once.Do(func() {
		s.leaves = buildOctree(modelAABB, counter, s.cfg, cancel)
	})
}

// GenerateTiles returns the previously-computed (or freshly computed)
// octree leaves whose level matches the requested level.
func (s *OctreeStrategy) GenerateTiles(level int, modelAABB geom.AABB, counter TriangleCounter, cancel <-chan struct{}) []TileDescriptor {
	s.ensureBuilt(modelAABB, counter, cancel)

	var out []TileDescriptor
	for _, leaf := range s.leaves {
		if leaf.Coord.Level == level {
			out = append(out, leaf)
		}
	}
	return out
}

// EstimateCount returns an upper bound (8^level) before pruning; the octree
// only prunes empty/undersized branches, so this is a safe over-estimate
// used purely for progress-bar sizing.
func (s *OctreeStrategy) EstimateCount(level int) int {
	return 1 << uint(3*level)
}

func buildOctree(modelAABB geom.AABB, counter TriangleCounter, cfg Config, cancel <-chan struct{}) []TileDescriptor {
	var leaves []TileDescriptor

	var recurse func(box geom.AABB, depth int, parent *TileCoord, cx, cy, cz int, path string)
	recurse = func(box geom.AABB, depth int, parent *TileCoord, cx, cy, cz int, path string) {
		select {
		case <-cancel:
			return
		default:
		}

		count := counter.CountInAABB(box)

		stop := depth >= maxOctreeDepth ||
			count < minPerTile ||
			(count < maxPerTileSoft && depth >= cfg.MaxLevel)

		if stop {
			if count == 0 {
				return // non-intersecting octants yield zero descriptors (spec.md §8 scenario 2)
			}
			leaves = append(leaves, TileDescriptor{
				Coord:   TileCoord{Level: depth, X: cx, Y: cy, Z: cz},
				AABB:    box,
				Parent:  parent,
				PathTag: path,
			})
			return
		}

		coord := TileCoord{Level: depth, X: cx, Y: cy, Z: cz}
		center := box.Center()

		for i := 0; i < 8; i++ {
			dx, dy, dz := (i & 1), (i >> 1 & 1), (i >> 2 & 1)
			childBox := geom.AABB{
				Min: geom.Vec3{
					X: axisBound(dx, box.Min.X, center.X),
					Y: axisBound(dy, box.Min.Y, center.Y),
					Z: axisBound(dz, box.Min.Z, center.Z),
				},
				Max: geom.Vec3{
					X: axisBound(dx, center.X, box.Max.X),
					Y: axisBound(dy, center.Y, box.Max.Y),
					Z: axisBound(dz, center.Z, box.Max.Z),
				},
			}
			recurse(childBox, depth+1, &coord, cx*2+dx, cy*2+dy, cz*2+dz, path+"."+strconv.Itoa(i))
		}
	}

	recurse(modelAABB, 0, nil, 0, 0, 0, "0")
	return leaves
}

// axisBound picks the low or high half of an axis range depending on which
// octant bit (0 or 1) is being built.
func axisBound(bit int, lo, hi float64) float64 {
	if bit == 0 {
		return lo
	}
	return hi
}
