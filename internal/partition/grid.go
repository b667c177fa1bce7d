package partition

import "github.com/pspoerri/mesh3dtiles/internal/geom"

// GridStrategy divides the model AABB into a uniform 2^L × 2^L ×
// max(1,2^(L-1)) grid per spec.md §4.4.1.
type GridStrategy struct {
	cfg Config
}

func gridDims(level int) (nx, ny, nz int) {
	nx = 1 << uint(level)
	ny = 1 << uint(level)
	nz = 1
	if level > 0 {
		nz = 1 << uint(level-1)
	}
	return
}

// GenerateTiles emits one descriptor per grid cell; Grid never filters on
// content — that decision belongs to the pipeline (C8), which skips tiles
// whose triangle query comes back empty.
func (g *GridStrategy) GenerateTiles(level int, modelAABB geom.AABB, _ TriangleCounter, cancel <-chan struct{}) []TileDescriptor {
	nx, ny, nz := gridDims(level)
	extent := modelAABB.Extent()
	cellSize := geom.Vec3{
		X: extent.X / float64(nx),
		Y: extent.Y / float64(ny),
		Z: extent.Z / float64(nz),
	}

	var out []TileDescriptor
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				select {
				case <-cancel:
					return out
				default:
				}
				min := geom.Vec3{
					X: modelAABB.Min.X + float64(x)*cellSize.X,
					Y: modelAABB.Min.Y + float64(y)*cellSize.Y,
					Z: modelAABB.Min.Z + float64(z)*cellSize.Z,
				}
				max := min.Add(cellSize)
				out = append(out, TileDescriptor{
					Coord: TileCoord{Level: level, X: x, Y: y, Z: z},
					AABB:  geom.AABB{Min: min, Max: max},
				})
			}
		}
	}
	return out
}

// EstimateCount returns 2^L · 2^L · max(1, 2^(L-1)), per spec.md §4.4.1.
func (g *GridStrategy) EstimateCount(level int) int {
	nx, ny, nz := gridDims(level)
	return nx * ny * nz
}
