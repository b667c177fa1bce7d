package partition

import (
	"math"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// AdaptiveStrategy scores each cell of a uniform base grid by a composite
// density metric (vertex density, triangle density, normal-curvature
// complexity, surface area) and expands bounding volumes for
// high-complexity cells, per spec.md §4.4.4. TriangleSample carries no
// vertex identities, so the vertex-density term is the cell's triangle
// count per volume, the same value as the triangle-density term.
type AdaptiveStrategy struct {
	cfg Config
}

type cellMetrics struct {
	coord         TileCoord
	box           geom.AABB
	triCount      int
	vertexDensity float64
	triDensity    float64
	curvature     float64
	area          float64
}

// GenerateTiles lays the same uniform grid as GridStrategy over the model
// at this level, then scores and reshapes each occupied cell.
func (s *AdaptiveStrategy) GenerateTiles(level int, modelAABB geom.AABB, counter TriangleCounter, cancel <-chan struct{}) []TileDescriptor {
	nx, ny, nz := gridDims(level)
	extent := modelAABB.Extent()
	cellSize := geom.Vec3{
		X: extent.X / float64(nx),
		Y: extent.Y / float64(ny),
		Z: extent.Z / float64(nz),
	}

	var cells []cellMetrics
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				select {
				case <-cancel:
					return descriptorsFromCells(cells, s.cfg)
				default:
				}

				min := geom.Vec3{
					X: modelAABB.Min.X + float64(x)*cellSize.X,
					Y: modelAABB.Min.Y + float64(y)*cellSize.Y,
					Z: modelAABB.Min.Z + float64(z)*cellSize.Z,
				}
				box := geom.AABB{Min: min, Max: min.Add(cellSize)}

				samples := counter.TrianglesInAABB(box)
				if len(samples) == 0 {
					continue
				}
				cells = append(cells, measureCell(TileCoord{Level: level, X: x, Y: y, Z: z}, box, samples))
			}
		}
	}
	return descriptorsFromCells(cells, s.cfg)
}

// EstimateCount returns the base grid's cell count; empty cells are pruned
// only once the triangle counter is consulted in GenerateTiles.
func (s *AdaptiveStrategy) EstimateCount(level int) int {
	nx, ny, nz := gridDims(level)
	return nx * ny * nz
}

func measureCell(coord TileCoord, box geom.AABB, samples []TriangleSample) cellMetrics {
	vol := box.Extent().X * box.Extent().Y * box.Extent().Z
	if vol < 1e-9 {
		vol = 1e-9
	}

	var area float64
	var normalSum geom.Vec3
	for _, sm := range samples {
		area += sm.Area
		normalSum = normalSum.Add(sm.Normal.Normalize())
	}
	avgNormal := normalSum
	if avgNormal.Length() > 1e-12 {
		avgNormal = avgNormal.Normalize()
	}

	var angleSum float64
	for _, sm := range samples {
		n := sm.Normal.Normalize()
		cos := clampFloat(n.Dot(avgNormal), -1, 1)
		angleSum += math.Acos(cos)
	}
	// Curvature-complexity proxy: mean angle between each face normal and
	// the cell's average normal, normalized to [0,1] by dividing by pi (the
	// max possible angle between normals).
	var curvature float64
	if len(samples) > 0 {
		curvature = clampFloat((angleSum/float64(len(samples)))/math.Pi, 0, 1)
	}

	density := float64(len(samples)) / vol
	return cellMetrics{
		coord:         coord,
		box:           box,
		triCount:      len(samples),
		vertexDensity: density,
		triDensity:    density,
		curvature:     curvature,
		area:          area,
	}
}

// descriptorsFromCells implements spec.md §4.4.4 steps 3-6: clamp-normalize
// each raw metric into its documented fixed range, composite a weighted
// score with adaptive weight transfers for strong signals, run it through
// the sigmoid-plus-curvature-bonus density formula, and reshape each cell's
// bounding volume according to that density.
func descriptorsFromCells(cells []cellMetrics, cfg Config) []TileDescriptor {
	if len(cells) == 0 {
		return nil
	}

	minExtent := cfg.TileSize * 0.01

	out := make([]TileDescriptor, 0, len(cells))
	for _, c := range cells {
		nvd := clampFloat(c.vertexDensity, 0, 100) / 100
		ntd := clampFloat(c.triDensity, 0, 50) / 50
		ncv := clampFloat(c.curvature, 0, 1)
		nar := clampFloat(c.area, 0, 1000) / 1000

		weights := adaptiveWeights(c.vertexDensity, c.curvature, c.area)
		score := weights[0]*nvd + weights[1]*ntd + weights[2]*ncv + weights[3]*nar

		density := sigmoid(5*(score-0.5)) + math.Min(ncv*0.2, 0.1)
		density = clampFloat(density, 0, 1)

		box := c.box
		if density > 0.8 {
			box = box.Expand(cfg.TileSize * 0.1)
		}
		if c.area > 500 {
			box = expandZ(box, cfg.TileSize*0.2)
		}
		box = enforceMinExtent(box, minExtent)
		box = roundAABB(box, 6)

		out = append(out, TileDescriptor{
			Coord:   c.coord,
			AABB:    box,
			Density: density,
		})
	}
	return out
}

// adaptiveWeights applies the baseline weights plus the documented strong-
// signal transfers (+0.10 to the triggered metric, -0.05 from each other),
// clamps any weight driven negative by overlapping transfers to zero, and
// renormalizes to sum 1.
func adaptiveWeights(rawVertexDensity, rawCurvature, rawArea float64) [4]float64 {
	w := [4]float64{0.30, 0.30, 0.25, 0.15}

	transfer := func(idx int) {
		for i := range w {
			if i == idx {
				w[i] += 0.10
			} else {
				w[i] -= 0.05
			}
		}
	}
	if rawVertexDensity > 80 {
		transfer(0)
	}
	if rawCurvature > 0.7 {
		transfer(2)
	}
	if rawArea > 800 {
		transfer(3)
	}

	var sum float64
	for i := range w {
		if w[i] < 0 {
			w[i] = 0
		}
		sum += w[i]
	}
	if sum < 1e-12 {
		return [4]float64{0.30, 0.30, 0.25, 0.15}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// expandZ grows only the Z axis symmetrically by margin, used for the
// vertical stretch applied to high-surface-area cells.
func expandZ(box geom.AABB, margin float64) geom.AABB {
	box.Min.Z -= margin
	box.Max.Z += margin
	return box
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// enforceMinExtent grows any axis narrower than minExtent symmetrically
// about its center, so degenerate slivers never reach the encoder.
func enforceMinExtent(box geom.AABB, minExtent float64) geom.AABB {
	if minExtent <= 0 {
		return box
	}
	center := box.Center()
	extent := box.Extent()
	min, max := box.Min, box.Max
	if extent.X < minExtent {
		min.X, max.X = center.X-minExtent/2, center.X+minExtent/2
	}
	if extent.Y < minExtent {
		min.Y, max.Y = center.Y-minExtent/2, center.Y+minExtent/2
	}
	if extent.Z < minExtent {
		min.Z, max.Z = center.Z-minExtent/2, center.Z+minExtent/2
	}
	return geom.AABB{Min: min, Max: max}
}

func roundAABB(box geom.AABB, decimals int) geom.AABB {
	return geom.AABB{
		Min: roundVec3(box.Min, decimals),
		Max: roundVec3(box.Max, decimals),
	}
}

func roundVec3(v geom.Vec3, decimals int) geom.Vec3 {
	scale := math.Pow10(decimals)
	return geom.Vec3{
		X: math.Round(v.X*scale) / scale,
		Y: math.Round(v.Y*scale) / scale,
		Z: math.Round(v.Z*scale) / scale,
	}
}
