package spatial

import (
	"log"
	"math"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// AdaptiveTolerance computes the tolerance used by Query, per spec.md §4.3
// step 1: the ratio of the tile's largest extent to the model's largest
// extent selects one of three regimes, each clamped to a floor of 1e-4.
func AdaptiveTolerance(tileAABB, modelAABB geom.AABB) float64 {
	sliceSize := tileAABB.MaxExtent()
	modelSize := modelAABB.MaxExtent()

	var tolerance float64
	if modelSize <= 0 {
		tolerance = 1e-4
	} else {
		ratio := sliceSize / modelSize
		switch {
		case ratio > 0.1:
			tolerance = math.Max(sliceSize*0.01, 1e-4)
		case ratio > 0.01:
			tolerance = math.Max(sliceSize*0.05, modelSize*0.001)
		default:
			tolerance = math.Max(sliceSize*0.1, modelSize*0.001)
		}
	}

	if tolerance < 1e-4 {
		tolerance = 1e-4
	}
	return tolerance
}

// Query returns the ordered, deduplicated list of triangle indices
// intersecting tileAABB, per spec.md §4.3. Never raises: an invalid tile
// AABB (min > max on some axis) yields an empty result, logged as a
// diagnostic.
func (idx *Index) Query(tileAABB geom.AABB, cancel <-chan struct{}) []int {
	if !tileAABB.IsValid() {
		log.Printf("spatial: tile AABB is invalid (min>max on some axis); returning empty result")
		return nil
	}

	modelAABB := idx.modelAABB
	tolerance := AdaptiveTolerance(tileAABB, modelAABB)

	expanded := tileAABB.Expand(tolerance)
	lo, hi := idx.CellRange(expanded)

	ratio := tileAABB.MaxExtent() / math.Max(modelAABB.MaxExtent(), 1e-12)
	if ratio < 0.01 {
		// Small tiles expand the cell range by one cell on each axis to
		// capture triangles straddling the cell boundary (spec.md §4.3 step 2).
		lo = CellKey{max0(lo.X - 1), max0(lo.Y - 1), max0(lo.Z - 1)}
		hi = CellKey{minDim(hi.X+1, GridX), minDim(hi.Y+1, GridY), minDim(hi.Z+1, GridZ)}
	}

	seen := make(map[int]struct{})
	var result []int

	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				select {
				case <-cancel:
					return result
				default:
				}

				key := CellKey{x, y, z}
				for _, triIdx := range idx.cells[key] {
					if _, dup := seen[triIdx]; dup {
						continue
					}
					tri := idx.mesh.Triangles[triIdx]
					triAABB := tri.AABB()
					if !triAABB.Intersects(expanded, tolerance) {
						continue
					}
					if geom.TriangleIntersectsAABB(tri, tileAABB, tolerance) {
						seen[triIdx] = struct{}{}
						result = append(result, triIdx)
					}
				}
			}
		}
	}

	return result
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func minDim(v, dim int) int {
	if v >= dim {
		return dim - 1
	}
	return v
}
