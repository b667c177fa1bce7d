// Package partition implements the four tile-partitioning strategies
// (C5): uniform grid, octree, KD-tree, and density-adaptive. Each strategy
// proposes a list of TileDescriptor values for one LOD level; none share
// state or behavior with the others (spec.md §9: "do not inherit behavior
// across strategies").
package partition

import "github.com/pspoerri/mesh3dtiles/internal/geom"

// TileCoord is the (level,x,y,z) address of a tile, unique per task.
type TileCoord struct {
	Level, X, Y, Z int
}

// TileDescriptor is a proposed tile: its coordinate, model-space bounding
// volume, optional parent, and strategy-specific metadata.
type TileDescriptor struct {
	Coord    TileCoord
	AABB     geom.AABB
	Parent   *TileCoord
	Density  float64 // meaningful only for the adaptive strategy
	PathTag  string  // octree/KD-tree debug path, e.g. "0.3.7"
}

// Config configures every strategy uniformly; strategies interpret only the
// fields relevant to them.
type Config struct {
	TileSize float64
	MaxLevel int
}

// Strategy is the capability set every partitioning algorithm implements
// (spec.md §4.4): propose tiles for one level, and cheaply estimate how
// many tiles a level would produce without doing the full work.
type Strategy interface {
	// GenerateTiles proposes tile descriptors for the given level, using
	// triangleCounter to decide when to stop subdividing (octree/KD-tree)
	// or to compute density metrics (adaptive). triangleCounter must be
	// safe for concurrent read-only use.
	GenerateTiles(level int, modelAABB geom.AABB, triangleCounter TriangleCounter, cancel <-chan struct{}) []TileDescriptor

	// EstimateCount returns the expected descriptor count for a level
	// without materializing it.
	EstimateCount(level int) int
}

// TriangleCounter abstracts the spatial-index query the partitioner needs:
// given an AABB, return the count of intersecting triangles (Count) or
// their centroids/normals for density metrics (Sample). Implemented by
// *spatial.Index via the adapter in internal/pipeline.
type TriangleCounter interface {
	CountInAABB(box geom.AABB) int
	TrianglesInAABB(box geom.AABB) []TriangleSample
}

// TriangleSample is the minimal per-triangle data the adaptive-density
// strategy needs, decoupled from geom.Triangle so this package does not
// need to import the mesh package.
type TriangleSample struct {
	Centroid geom.Vec3
	Normal   geom.Vec3 // non-unit face normal
	Area     float64
}

const (
	maxOctreeDepth  = 10
	minPerTile      = 100
	maxPerTileSoft  = 5000
)

// New constructs a Strategy by name: "grid", "octree", "kd", or "adaptive".
func New(name string, cfg Config) (Strategy, error) {
	switch name {
	case "grid":
		return &GridStrategy{cfg: cfg}, nil
	case "octree":
		return &OctreeStrategy{cfg: cfg}, nil
	case "kd":
		return &KDStrategy{cfg: cfg}, nil
	case "adaptive":
		return &AdaptiveStrategy{cfg: cfg}, nil
	default:
		return nil, &UnknownStrategyError{Name: name}
	}
}

// UnknownStrategyError is returned by New for an unrecognized strategy name.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return "unknown partition strategy: " + e.Name
}
