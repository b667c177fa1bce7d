// Package gltfenc encodes a mesh.Mesh into a binary glTF 2.0 (GLB) buffer:
// a 12-byte header, a 4-byte-aligned JSON chunk, and a 4-byte-aligned BIN
// chunk holding the vertex attributes and a uint32 index buffer. Each
// vertex attribute gets its own tightly packed buffer view; attributes are
// not interleaved. Only the mesh is encoded: instance transforms and point
// positions are not part of the GLB.
package gltfenc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

const (
	glbMagic        = 0x46546C67 // "glTF"
	glbVersion      = 2
	glbChunkTypeJSON = 0x4E4F534A
	glbChunkTypeBIN  = 0x004E4942

	componentFloat = 5126
	componentUint  = 5125

	accessorVEC2 = "VEC2"
	accessorVEC3 = "VEC3"
	accessorSCALAR = "SCALAR"
)

type doc struct {
	Asset      asset           `json:"asset"`
	Scene      int             `json:"scene"`
	Scenes     []scene         `json:"scenes"`
	Nodes      []node          `json:"nodes"`
	Meshes     []gltfMesh      `json:"meshes"`
	Materials  []material      `json:"materials,omitempty"`
	Textures   []texture       `json:"textures,omitempty"`
	Images     []image         `json:"images,omitempty"`
	Samplers   []sampler       `json:"samplers,omitempty"`
	Accessors  []accessor      `json:"accessors"`
	BufferViews []bufferView   `json:"bufferViews"`
	Buffers    []buffer        `json:"buffers"`
}

type asset struct {
	Version string `json:"version"`
}

type scene struct {
	Nodes []int `json:"nodes"`
}

type node struct {
	Mesh *int `json:"mesh,omitempty"`
}

type gltfMesh struct {
	Primitives []primitive `json:"primitives"`
}

type primitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    int            `json:"indices"`
	Material   *int           `json:"material,omitempty"`
	Mode       int            `json:"mode"`
}

type material struct {
	Name                string               `json:"name,omitempty"`
	PBRMetallicRoughness pbrMetallicRoughness `json:"pbrMetallicRoughness"`
}

type pbrMetallicRoughness struct {
	BaseColorFactor [4]float64        `json:"baseColorFactor"`
	BaseColorTexture *textureRef      `json:"baseColorTexture,omitempty"`
	MetallicFactor  float64           `json:"metallicFactor"`
	RoughnessFactor float64           `json:"roughnessFactor"`
}

type textureRef struct {
	Index int `json:"index"`
}

type texture struct {
	Source  int  `json:"source"`
	Sampler int  `json:"sampler"`
}

type sampler struct {
	MagFilter int `json:"magFilter"`
	MinFilter int `json:"minFilter"`
	WrapS     int `json:"wrapS"`
	WrapT     int `json:"wrapT"`
}

type image struct {
	MimeType   string `json:"mimeType"`
	BufferView int    `json:"bufferView"`
}

type accessor struct {
	BufferView    int       `json:"bufferView"`
	ByteOffset    int       `json:"byteOffset,omitempty"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float64 `json:"min,omitempty"`
	Max           []float64 `json:"max,omitempty"`
}

type bufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride,omitempty"`
	Target     int `json:"target,omitempty"`
}

type buffer struct {
	ByteLength int `json:"byteLength"`
}

const (
	targetArrayBuffer        = 34962
	targetElementArrayBuffer = 34963
)

// Encode builds a single-primitive-per-material binary glTF asset from m and
// returns the raw GLB bytes (12-byte header + JSON chunk + BIN chunk).
func Encode(m *mesh.Mesh) ([]byte, error) {
	if len(m.Triangles) == 0 {
		return nil, fmt.Errorf("gltfenc: mesh has no triangles")
	}

	groups := groupByMaterial(m)

	var bin bytes.Buffer
	d := doc{
		Asset:  asset{Version: "2.0"},
		Scene:  0,
		Scenes: []scene{{Nodes: []int{0}}},
		Nodes:  []node{{Mesh: intPtr(0)}},
	}

	matIndex := map[string]int{}
	gm := gltfMesh{}

	for _, g := range groups {
		posView, posAccessor := writeVec3Accessor(&bin, &d, g.positions, true)
		attrs := map[string]int{"POSITION": posAccessor}
		_ = posView

		if g.hasNormals {
			_, nAccessor := writeVec3Accessor(&bin, &d, g.normals, false)
			attrs["NORMAL"] = nAccessor
		}
		if g.hasUVs {
			_, uvAccessor := writeVec2Accessor(&bin, &d, g.uvs)
			attrs["TEXCOORD_0"] = uvAccessor
		}

		_, idxAccessor := writeIndexAccessor(&bin, &d, g.indices)

		prim := primitive{
			Attributes: attrs,
			Indices:    idxAccessor,
			Mode:       4, // TRIANGLES
		}

		if matIdx, ok := matIndex[g.material.Name]; ok {
			prim.Material = intPtr(matIdx)
		} else {
			idx := len(d.Materials)
			d.Materials = append(d.Materials, buildMaterial(&d, &bin, g.material))
			matIndex[g.material.Name] = idx
			prim.Material = intPtr(idx)
		}

		gm.Primitives = append(gm.Primitives, prim)
	}

	d.Meshes = []gltfMesh{gm}
	d.Buffers = []buffer{{ByteLength: bin.Len()}}

	return assembleGLB(&d, bin.Bytes())
}

type materialGroup struct {
	material   mesh.Material
	positions  []geom.Vec3
	normals    []geom.Vec3
	uvs        []geom.UV
	indices    []uint32
	hasNormals bool
	hasUVs     bool
}

// groupByMaterial flattens the mesh's triangle soup into one unindexed
// (then locally re-indexed) vertex buffer per material, since 3D Tiles
// feature-table batching wants one glTF primitive per material.
func groupByMaterial(m *mesh.Mesh) []materialGroup {
	byMat := map[string]*materialGroup{}
	var order []string

	for _, tri := range m.Triangles {
		matName := tri.Material
		g, ok := byMat[matName]
		if !ok {
			matMesh := m.MaterialOrDefault(matName)
			g = &materialGroup{material: matMesh, hasNormals: true, hasUVs: true}
			byMat[matName] = g
			order = append(order, matName)
		}
		if !tri.HasNormals {
			g.hasNormals = false
		}
		if !tri.HasUVs {
			g.hasUVs = false
		}

		base := uint32(len(g.positions))
		g.positions = append(g.positions, tri.V0, tri.V1, tri.V2)
		if tri.HasNormals {
			g.normals = append(g.normals, tri.N0, tri.N1, tri.N2)
		}
		if tri.HasUVs {
			g.uvs = append(g.uvs, tri.UV0, tri.UV1, tri.UV2)
		}
		g.indices = append(g.indices, base, base+1, base+2)
	}

	out := make([]materialGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *byMat[name])
	}
	return out
}

func intPtr(v int) *int { return &v }

func alignTo4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeVec3Accessor(bin *bytes.Buffer, d *doc, vs []geom.Vec3, withBounds bool) (viewIdx, accessorIdx int) {
	offset := bin.Len()
	min := geom.Vec3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := geom.Vec3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}

	for _, v := range vs {
		writeFloat32(bin, float32(v.X))
		writeFloat32(bin, float32(v.Y))
		writeFloat32(bin, float32(v.Z))
		if withBounds {
			min = min.Min(v)
			max = max.Max(v)
		}
	}
	alignTo4(bin)

	viewIdx = len(d.BufferViews)
	d.BufferViews = append(d.BufferViews, bufferView{
		Buffer: 0, ByteOffset: offset, ByteLength: len(vs) * 12, Target: targetArrayBuffer,
	})

	acc := accessor{
		BufferView: viewIdx, ComponentType: componentFloat, Count: len(vs), Type: accessorVEC3,
	}
	if withBounds && len(vs) > 0 {
		acc.Min = []float64{min.X, min.Y, min.Z}
		acc.Max = []float64{max.X, max.Y, max.Z}
	}
	accessorIdx = len(d.Accessors)
	d.Accessors = append(d.Accessors, acc)
	return
}

func writeVec2Accessor(bin *bytes.Buffer, d *doc, uvs []geom.UV) (viewIdx, accessorIdx int) {
	offset := bin.Len()
	for _, uv := range uvs {
		writeFloat32(bin, float32(uv.U))
		writeFloat32(bin, float32(uv.V))
	}
	alignTo4(bin)

	viewIdx = len(d.BufferViews)
	d.BufferViews = append(d.BufferViews, bufferView{
		Buffer: 0, ByteOffset: offset, ByteLength: len(uvs) * 8, Target: targetArrayBuffer,
	})
	accessorIdx = len(d.Accessors)
	d.Accessors = append(d.Accessors, accessor{
		BufferView: viewIdx, ComponentType: componentFloat, Count: len(uvs), Type: accessorVEC2,
	})
	return
}

func writeIndexAccessor(bin *bytes.Buffer, d *doc, indices []uint32) (viewIdx, accessorIdx int) {
	offset := bin.Len()
	for _, idx := range indices {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], idx)
		bin.Write(b[:])
	}
	alignTo4(bin)

	viewIdx = len(d.BufferViews)
	d.BufferViews = append(d.BufferViews, bufferView{
		Buffer: 0, ByteOffset: offset, ByteLength: len(indices) * 4, Target: targetElementArrayBuffer,
	})
	accessorIdx = len(d.Accessors)
	d.Accessors = append(d.Accessors, accessor{
		BufferView: viewIdx, ComponentType: componentUint, Count: len(indices), Type: accessorSCALAR,
	})
	return
}

func buildMaterial(d *doc, bin *bytes.Buffer, m mesh.Material) material {
	mat := material{
		Name: m.Name,
		PBRMetallicRoughness: pbrMetallicRoughness{
			BaseColorFactor: m.BaseColor,
			MetallicFactor:  m.Metallic,
			RoughnessFactor: m.Roughness,
		},
	}
	if m.Texture != nil && len(m.Texture.Data) > 0 {
		texIdx := embedTexture(d, bin, m.Texture)
		mat.PBRMetallicRoughness.BaseColorTexture = &textureRef{Index: texIdx}
	}
	return mat
}

func embedTexture(d *doc, bin *bytes.Buffer, t *mesh.Texture) int {
	offset := bin.Len()
	bin.Write(t.Data)
	alignTo4(bin)

	viewIdx := len(d.BufferViews)
	d.BufferViews = append(d.BufferViews, bufferView{
		Buffer: 0, ByteOffset: offset, ByteLength: len(t.Data),
	})

	mime := t.Mime
	if mime == "" {
		mime = "image/webp"
	}
	imgIdx := len(d.Images)
	d.Images = append(d.Images, image{MimeType: mime, BufferView: viewIdx})

	if len(d.Samplers) == 0 {
		d.Samplers = append(d.Samplers, sampler{MagFilter: 9729, MinFilter: 9987, WrapS: 10497, WrapT: 10497})
	}

	texIdx := len(d.Textures)
	d.Textures = append(d.Textures, texture{Source: imgIdx, Sampler: 0})
	return texIdx
}

func writeFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

// assembleGLB serializes the document and binary chunk into a GLB buffer
// per the binary glTF 2.0 container layout: 12-byte header, then a JSON
// chunk and a BIN chunk, each individually 4-byte aligned.
func assembleGLB(d *doc, bin []byte) ([]byte, error) {
	jsonBytes, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("gltfenc: marshaling glTF JSON: %w", err)
	}
	for len(jsonBytes)%4 != 0 {
		jsonBytes = append(jsonBytes, ' ') // JSON chunks pad with spaces (0x20)
	}
	for len(bin)%4 != 0 {
		bin = append(bin, 0) // BIN chunks pad with zeros
	}

	totalLen := 12 + 8 + len(jsonBytes) + 8 + len(bin)

	var out bytes.Buffer
	out.Grow(totalLen)

	writeUint32(&out, glbMagic)
	writeUint32(&out, glbVersion)
	writeUint32(&out, uint32(totalLen))

	writeUint32(&out, uint32(len(jsonBytes)))
	writeUint32(&out, glbChunkTypeJSON)
	out.Write(jsonBytes)

	writeUint32(&out, uint32(len(bin)))
	writeUint32(&out, glbChunkTypeBIN)
	out.Write(bin)

	return out.Bytes(), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
