// Package mesh defines the unified mesh representation produced by every
// ingest-format parser (OBJ, STL, PLY, glTF/GLB) and parses each of them.
package mesh

import "github.com/pspoerri/mesh3dtiles/internal/geom"

// Texture is an embedded image owned by a Material; lifetime is tied to the
// owning Mesh.
type Texture struct {
	Path string // original reference (file name or data-URI tag), informational only
	Data []byte // decoded or raw image bytes
	Mime string // e.g. "image/png", "image/jpeg"
}

// Material describes a PBR metallic-roughness material. Zero value is a
// flat white, fully-rough, non-metallic material.
type Material struct {
	Name      string
	BaseColor [4]float64 // rgba, each in [0,1]
	Metallic  float64
	Roughness float64

	Texture   *Texture // base color texture, optional
	NormalMap *Texture // optional
}

// DefaultMaterial returns the material used for untagged triangles.
func DefaultMaterial() Material {
	return Material{
		Name:      "",
		BaseColor: [4]float64{0.8, 0.8, 0.8, 1.0},
		Metallic:  0.0,
		Roughness: 1.0,
	}
}

// Mesh is the parser-agnostic unified representation: an ordered vertex
// list, an ordered triangle list referencing it, and a material table.
// Parsers return it fully built. AABB writes a cached bounding box into
// the Mesh on its first call, and the pipeline's texture repack replaces
// Materials entries in place.
type Mesh struct {
	Vertices  []geom.Vec3
	Triangles []geom.Triangle
	Materials map[string]Material

	aabb      geom.AABB
	aabbValid bool
}

// AABB returns the mesh's bounding box, computing and caching it on first
// use.
func (m *Mesh) AABB() geom.AABB {
	if m.aabbValid {
		return m.aabb
	}
	box := geom.EmptyAABB()
	for _, tri := range m.Triangles {
		box = box.Union(tri.AABB())
	}
	m.aabb = box
	m.aabbValid = true
	return box
}

// TriangleCount returns len(m.Triangles).
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles)
}

// MaterialOrDefault looks up a material by name, falling back to the
// package default for unknown or empty names.
func (m *Mesh) MaterialOrDefault(name string) Material {
	if name != "" {
		if mat, ok := m.Materials[name]; ok {
			return mat
		}
	}
	return DefaultMaterial()
}
