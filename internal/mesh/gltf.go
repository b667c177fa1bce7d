package mesh

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

const (
	glbChunkTypeJSON = 0x4E4F534A
	glbChunkTypeBIN  = 0x004E4942
)

// gltfDoc mirrors the subset of the glTF 2.0 JSON schema this parser reads.
type gltfDoc struct {
	Buffers    []gltfBuffer    `json:"buffers"`
	BufferViews []gltfBufferView `json:"bufferViews"`
	Accessors  []gltfAccessor  `json:"accessors"`
	Meshes     []gltfMesh      `json:"meshes"`
}

type gltfBuffer struct {
	URI        string `json:"uri"`
	ByteLength int    `json:"byteLength"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride"`
}

type gltfAccessor struct {
	BufferView    int    `json:"bufferView"`
	ByteOffset    int    `json:"byteOffset"`
	ComponentType int    `json:"componentType"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
}

type gltfMesh struct {
	Primitives []gltfPrimitive `json:"primitives"`
}

type gltfPrimitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices"`
	Mode       *int           `json:"mode"`
	Material   *int           `json:"material"`
}

const (
	gltfModeTriangles     = 4
	gltfModeTriangleStrip = 5
	gltfModeTriangleFan   = 6
)

func parseGLTF(filename string, data []byte) (*Mesh, error) {
	var jsonBytes []byte
	var binChunk []byte

	if len(data) >= 12 && binary.LittleEndian.Uint32(data[0:4]) == glbMagic {
		var err error
		jsonBytes, binChunk, err = parseGLBChunks(data)
		if err != nil {
			return nil, err
		}
	} else if strings.HasSuffix(strings.ToLower(filename), ".gltf") || looksLikeJSON(data) {
		jsonBytes = data
	} else {
		return nil, &ParseError{Kind: ErrUnsupportedFormat, Message: "not a recognizable glTF/GLB document"}
	}

	var doc gltfDoc
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, &ParseError{Kind: ErrCorrupted, Message: fmt.Sprintf("invalid glTF JSON: %v", err)}
	}

	// Resolve each declared buffer to raw bytes. External URIs are out of
	// scope (spec.md §4.1): only the embedded GLB BIN chunk or data-URI
	// buffers are supported.
	buffers := make([][]byte, len(doc.Buffers))
	for i, b := range doc.Buffers {
		switch {
		case b.URI == "" && binChunk != nil:
			buffers[i] = binChunk
		case strings.HasPrefix(b.URI, "data:"):
			decoded, err := decodeDataURI(b.URI)
			if err != nil {
				return nil, &ParseError{Kind: ErrCorrupted, Message: fmt.Sprintf("buffer %d: %v", i, err)}
			}
			buffers[i] = decoded
		default:
			return nil, &ParseError{Kind: ErrUnsupportedFormat, Message: fmt.Sprintf("buffer %d references an external URI, which is not supported in scope", i)}
		}
	}

	readAccessorFloats := func(accIdx int, componentsPerElement int) ([]float64, error) {
		acc := doc.Accessors[accIdx]
		bv := doc.BufferViews[acc.BufferView]
		buf := buffers[bv.Buffer]
		base := bv.ByteOffset + acc.ByteOffset

		stride := bv.ByteStride
		compSize := gltfComponentSize(acc.ComponentType)
		if stride == 0 {
			stride = compSize * componentsPerElement
		}

		out := make([]float64, acc.Count*componentsPerElement)
		for e := 0; e < acc.Count; e++ {
			elemOffset := base + e*stride
			for c := 0; c < componentsPerElement; c++ {
				off := elemOffset + c*compSize
				if off+compSize > len(buf) {
					return nil, fmt.Errorf("accessor %d out of range", accIdx)
				}
				out[e*componentsPerElement+c] = gltfDecodeComponent(buf[off:off+compSize], acc.ComponentType)
			}
		}
		return out, nil
	}

	readAccessorIndices := func(accIdx int) ([]int, error) {
		acc := doc.Accessors[accIdx]
		bv := doc.BufferViews[acc.BufferView]
		buf := buffers[bv.Buffer]
		base := bv.ByteOffset + acc.ByteOffset
		compSize := gltfComponentSize(acc.ComponentType)
		stride := bv.ByteStride
		if stride == 0 {
			stride = compSize
		}

		out := make([]int, acc.Count)
		for e := 0; e < acc.Count; e++ {
			off := base + e*stride
			if off+compSize > len(buf) {
				return nil, fmt.Errorf("index accessor %d out of range", accIdx)
			}
			out[e] = int(gltfDecodeComponent(buf[off:off+compSize], acc.ComponentType))
		}
		return out, nil
	}

	var vertices []geom.Vec3
	var triangles []geom.Triangle

	for _, m := range doc.Meshes {
		for _, prim := range m.Primitives {
			mode := gltfModeTriangles
			if prim.Mode != nil {
				mode = *prim.Mode
			}
			if mode != gltfModeTriangles && mode != gltfModeTriangleStrip && mode != gltfModeTriangleFan {
				continue
			}

			posIdx, ok := prim.Attributes["POSITION"]
			if !ok {
				continue
			}
			posFloats, err := readAccessorFloats(posIdx, 3)
			if err != nil {
				continue
			}
			positions := make([]geom.Vec3, len(posFloats)/3)
			for i := range positions {
				positions[i] = geom.Vec3{X: posFloats[i*3], Y: posFloats[i*3+1], Z: posFloats[i*3+2]}
			}
			vertices = append(vertices, positions...)

			var indices []int
			if prim.Indices != nil {
				indices, err = readAccessorIndices(*prim.Indices)
				if err != nil {
					continue
				}
			} else {
				indices = make([]int, len(positions))
				for i := range indices {
					indices[i] = i
				}
			}

			triangles = append(triangles, triangulateGLTFPrimitive(positions, indices, mode)...)
		}
	}

	if len(vertices) == 0 || len(triangles) == 0 {
		return nil, newEmptyModelError(0, "UTF-8")
	}

	return &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
		Materials: map[string]Material{},
	}, nil
}

// triangulateGLTFPrimitive expands TRIANGLES/TRIANGLE_STRIP/TRIANGLE_FAN
// index lists into a flat triangle list, per spec.md §4.1: strips flip
// winding on odd-indexed triangles, fans pivot on v0.
func triangulateGLTFPrimitive(positions []geom.Vec3, indices []int, mode int) []geom.Triangle {
	valid := func(i int) bool { return i >= 0 && i < len(positions) }

	var out []geom.Triangle
	switch mode {
	case gltfModeTriangles:
		for i := 0; i+2 < len(indices); i += 3 {
			a, b, c := indices[i], indices[i+1], indices[i+2]
			if valid(a) && valid(b) && valid(c) {
				out = append(out, geom.Triangle{V0: positions[a], V1: positions[b], V2: positions[c]})
			}
		}
	case gltfModeTriangleStrip:
		for i := 0; i+2 < len(indices); i++ {
			a, b, c := indices[i], indices[i+1], indices[i+2]
			if !valid(a) || !valid(b) || !valid(c) {
				continue
			}
			if i%2 == 0 {
				out = append(out, geom.Triangle{V0: positions[a], V1: positions[b], V2: positions[c]})
			} else {
				out = append(out, geom.Triangle{V0: positions[b], V1: positions[a], V2: positions[c]})
			}
		}
	case gltfModeTriangleFan:
		if len(indices) < 3 {
			return nil
		}
		v0 := indices[0]
		if !valid(v0) {
			return nil
		}
		for i := 1; i+1 < len(indices); i++ {
			vi, vi1 := indices[i], indices[i+1]
			if valid(vi) && valid(vi1) {
				out = append(out, geom.Triangle{V0: positions[v0], V1: positions[vi], V2: positions[vi1]})
			}
		}
	}
	return out
}

func gltfComponentSize(componentType int) int {
	switch componentType {
	case 5120, 5121: // BYTE, UNSIGNED_BYTE
		return 1
	case 5122, 5123: // SHORT, UNSIGNED_SHORT
		return 2
	case 5125, 5126: // UNSIGNED_INT, FLOAT
		return 4
	default:
		return 4
	}
}

func gltfDecodeComponent(b []byte, componentType int) float64 {
	switch componentType {
	case 5120: // BYTE
		return float64(int8(b[0]))
	case 5121: // UNSIGNED_BYTE
		return float64(b[0])
	case 5122: // SHORT
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case 5123: // UNSIGNED_SHORT
		return float64(binary.LittleEndian.Uint16(b))
	case 5125: // UNSIGNED_INT
		return float64(binary.LittleEndian.Uint32(b))
	case 5126: // FLOAT
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return 0
	}
}

// parseGLBChunks splits a GLB container into its JSON and (optional) BIN
// chunks, per spec.md §4.1: 12-byte header, then one or two 8-byte-prefixed
// chunks tagged JSON (0x4E4F534A) or BIN (0x004E4942).
func parseGLBChunks(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < 12 {
		return nil, nil, &ParseError{Kind: ErrCorrupted, Message: "GLB shorter than header"}
	}
	totalLength := binary.LittleEndian.Uint32(data[8:12])
	if int(totalLength) > len(data) {
		return nil, nil, &ParseError{Kind: ErrCorrupted, Message: "GLB declared length exceeds file size"}
	}

	offset := 12
	for offset+8 <= len(data) {
		chunkLength := binary.LittleEndian.Uint32(data[offset : offset+4])
		chunkType := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		start := offset + 8
		end := start + int(chunkLength)
		if end > len(data) {
			break
		}
		switch chunkType {
		case glbChunkTypeJSON:
			jsonChunk = data[start:end]
		case glbChunkTypeBIN:
			binChunk = data[start:end]
		}
		offset = end
	}

	if jsonChunk == nil {
		return nil, nil, &ParseError{Kind: ErrCorrupted, Message: "GLB missing JSON chunk"}
	}
	return jsonChunk, binChunk, nil
}

func looksLikeJSON(data []byte) bool {
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		return b == '{'
	}
	return false
}

func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, ",")
	if idx < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta := uri[:idx]
	payload := uri[idx+1:]
	if !strings.Contains(meta, "base64") {
		return nil, fmt.Errorf("unsupported data URI encoding (only base64 embedded buffers are supported)")
	}
	return base64.StdEncoding.DecodeString(payload)
}
