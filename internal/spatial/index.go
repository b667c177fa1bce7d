// Package spatial builds the fixed-grid spatial index (C3) over a parsed
// mesh and answers tile-triangle queries against it (C4).
package spatial

import (
	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

// Grid dimensions fixed by spec.md §4.2.
const (
	GridX = 64
	GridY = 64
	GridZ = 32
)

// CellKey identifies one voxel in the uniform grid.
type CellKey struct {
	X, Y, Z int
}

// Index is the read-only, once-built uniform voxel grid over a Mesh's AABB.
// Every triangle index is recorded in every cell its own AABB overlaps.
type Index struct {
	modelAABB geom.AABB
	cellSize  geom.Vec3
	cells     map[CellKey][]int
	mesh      *mesh.Mesh
}

// Build constructs the spatial index for m. Matches the teacher's
// once-per-run, read-only-thereafter cache construction pattern
// (internal/cog.TileCache in the teacher repo).
func Build(m *mesh.Mesh) *Index {
	modelAABB := m.AABB()
	extent := modelAABB.Extent()

	cellSize := geom.Vec3{
		X: safeCellSize(extent.X, GridX),
		Y: safeCellSize(extent.Y, GridY),
		Z: safeCellSize(extent.Z, GridZ),
	}

	idx := &Index{
		modelAABB: modelAABB,
		cellSize:  cellSize,
		cells:     make(map[CellKey][]int),
		mesh:      m,
	}

	for i, tri := range m.Triangles {
		box := tri.AABB()
		lo := idx.cellCoord(box.Min)
		hi := idx.cellCoord(box.Max)
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				for z := lo.Z; z <= hi.Z; z++ {
					key := CellKey{x, y, z}
					idx.cells[key] = append(idx.cells[key], i)
				}
			}
		}
	}

	return idx
}

// safeCellSize guards against a zero-extent axis (spec.md §4.2): a
// degenerate axis gets a cell size of 1.0 rather than dividing by zero.
func safeCellSize(extent float64, dim int) float64 {
	if extent <= 0 {
		return 1.0
	}
	return extent / float64(dim)
}

// cellCoord maps a model-space point to its clamped cell index.
func (idx *Index) cellCoord(p geom.Vec3) CellKey {
	cx := clampAxis(p.X, idx.modelAABB.Min.X, idx.cellSize.X, GridX)
	cy := clampAxis(p.Y, idx.modelAABB.Min.Y, idx.cellSize.Y, GridY)
	cz := clampAxis(p.Z, idx.modelAABB.Min.Z, idx.cellSize.Z, GridZ)
	return CellKey{cx, cy, cz}
}

func clampAxis(v, min, size float64, dim int) int {
	c := int((v - min) / size)
	if c < 0 {
		c = 0
	}
	if c >= dim {
		c = dim - 1
	}
	return c
}

// Mesh returns the mesh this index was built from.
func (idx *Index) Mesh() *mesh.Mesh {
	return idx.mesh
}

// ModelAABB returns the model's overall bounding box.
func (idx *Index) ModelAABB() geom.AABB {
	return idx.modelAABB
}

// CellSize returns the per-axis voxel dimensions.
func (idx *Index) CellSize() geom.Vec3 {
	return idx.cellSize
}

// CellRange returns the inclusive [lo, hi] cell coordinate range overlapped
// by box, clamped to the grid.
func (idx *Index) CellRange(box geom.AABB) (lo, hi CellKey) {
	return idx.cellCoord(box.Min), idx.cellCoord(box.Max)
}

// TrianglesInCell returns the triangle indices recorded for a single cell.
// The returned slice must not be mutated by callers.
func (idx *Index) TrianglesInCell(key CellKey) []int {
	return idx.cells[key]
}

// CellCount returns the number of non-empty cells, useful for diagnostics.
func (idx *Index) CellCount() int {
	return len(idx.cells)
}
