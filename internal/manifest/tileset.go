// Package manifest builds the Cesium 3D Tiles tileset.json that describes
// the tile pyramid's hierarchy, bounding volumes, and refinement strategy.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/partition"
)

// Refine is the 3D Tiles refinement strategy for a tile's children.
type Refine string

const (
	RefineReplace Refine = "REPLACE"
	RefineAdd     Refine = "ADD"
)

// Node describes a single emitted tile: its descriptor, content URI
// (relative to the tileset root), and its children in the pyramid.
type Node struct {
	Coord    partition.TileCoord
	AABB     geom.AABB
	URI      string
	Children []*Node
}

// Config parameterizes tileset.json generation.
type Config struct {
	BaseGeometricError float64 // geometricError at the deepest level
	MaxLevel           int
	Refine             Refine
}

type tilesetDoc struct {
	Asset              assetInfo `json:"asset"`
	GeometricError     float64   `json:"geometricError"`
	Root               tileJSON  `json:"root"`
}

type assetInfo struct {
	Version string `json:"version"`
}

type tileJSON struct {
	BoundingVolume boundingVolume `json:"boundingVolume"`
	GeometricError float64        `json:"geometricError"`
	Refine         string         `json:"refine,omitempty"`
	Content        *contentJSON   `json:"content,omitempty"`
	Children       []tileJSON     `json:"children,omitempty"`
}

type boundingVolume struct {
	Box [12]float64 `json:"box"`
}

type contentJSON struct {
	URI string `json:"uri"`
}

// geometricErrorForLevel computes geometricError = baseError * 2^(maxLevel-level),
// so coarser (lower-numbered) levels have proportionally larger screen-space
// error budgets than the finest level.
func geometricErrorForLevel(baseError float64, maxLevel, level int) float64 {
	return baseError * math.Pow(2, float64(maxLevel-level))
}

// BuildTileset assembles a tileset.json document from the root node
// downward. root must be non-nil; its AABB becomes the tileset's global
// bounding volume.
func BuildTileset(root *Node, cfg Config) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("manifest: root node is nil")
	}

	refineStr := string(cfg.Refine)
	if refineStr == "" {
		refineStr = string(RefineReplace)
	}

	rootTile := buildTileJSON(root, cfg, refineStr, true)

	doc := tilesetDoc{
		Asset:          assetInfo{Version: "1.1"},
		GeometricError: rootTile.GeometricError,
		Root:           rootTile,
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshaling tileset.json: %w", err)
	}
	return out, nil
}

func buildTileJSON(n *Node, cfg Config, refine string, isRoot bool) tileJSON {
	t := tileJSON{
		BoundingVolume: boundingVolume{Box: n.AABB.BoxCorners()},
		GeometricError: geometricErrorForLevel(cfg.BaseGeometricError, cfg.MaxLevel, n.Coord.Level),
	}
	if isRoot {
		t.Refine = refine
	}
	if n.URI != "" {
		t.Content = &contentJSON{URI: n.URI}
	}
	for _, child := range n.Children {
		t.Children = append(t.Children, buildTileJSON(child, cfg, refine, false))
	}
	return t
}
