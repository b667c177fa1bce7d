package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

const stlHeaderSize = 80

func parseSTL(data []byte) (*Mesh, error) {
	if len(data) < stlHeaderSize {
		return nil, &ParseError{Kind: ErrEmptyModel, Message: "file shorter than STL header"}
	}

	header := data[:stlHeaderSize]
	if bytes.HasPrefix(bytes.ToLower(bytes.TrimSpace(header)), []byte("solid")) {
		if m, err := parseSTLASCII(data); err == nil {
			return m, nil
		} else if pe, ok := err.(*ParseError); ok && pe.Kind != ErrEmptyModel {
			return nil, err
		}
		// "solid" header but binary-shaped body (some exporters emit this);
		// fall through to the binary parser.
	}
	return parseSTLBinary(data)
}

func parseSTLASCII(data []byte) (*Mesh, error) {
	var triangles []geom.Triangle
	var verts [3]geom.Vec3
	vertIdx := 0
	lineCount := 0
	malformed := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		lineCount++
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "vertex":
			if len(fields) < 4 {
				malformed++
				continue
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			z, errZ := strconv.ParseFloat(fields[3], 64)
			if errX != nil || errY != nil || errZ != nil || vertIdx >= 3 {
				malformed++
				continue
			}
			verts[vertIdx] = geom.Vec3{X: x, Y: y, Z: z}
			vertIdx++
		case "endfacet":
			if vertIdx == 3 {
				triangles = append(triangles, geom.Triangle{V0: verts[0], V1: verts[1], V2: verts[2]})
			}
			vertIdx = 0
		case "facet", "outer", "endloop", "endsolid", "solid":
			// structural tokens, no data
		default:
			// ignored
		}

		if malformed > maxMalformedOBJLines {
			return nil, newCorruptedError(malformed, maxMalformedOBJLines)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Kind: ErrCorrupted, Message: err.Error(), LineCount: lineCount}
	}

	if len(triangles) == 0 {
		return nil, newEmptyModelError(lineCount, "ASCII")
	}

	return meshFromTriangles(triangles), nil
}

func parseSTLBinary(data []byte) (*Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, newEmptyModelError(0, "binary")
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize : stlHeaderSize+4])

	offset := stlHeaderSize + 4
	const recordSize = 12 + 36 + 2 // normal + 3 vertices(f32x3) + attribute
	triangles := make([]geom.Triangle, 0, count)

	for i := uint32(0); i < count; i++ {
		if offset+recordSize > len(data) {
			break // truncated file: stop, keep whatever was read (tolerant per §4.1)
		}
		rec := data[offset : offset+recordSize]
		offset += recordSize

		// rec[0:12] = normal (ignored)
		v0 := readFloat32Vec3(rec[12:24])
		v1 := readFloat32Vec3(rec[24:36])
		v2 := readFloat32Vec3(rec[36:48])
		// rec[48:50] = attribute byte count (ignored)

		triangles = append(triangles, geom.Triangle{V0: v0, V1: v1, V2: v2})
	}

	if len(triangles) == 0 {
		return nil, newEmptyModelError(0, "binary")
	}

	return meshFromTriangles(triangles), nil
}

func readFloat32Vec3(b []byte) geom.Vec3 {
	x := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))
	return geom.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}
}

func meshFromTriangles(triangles []geom.Triangle) *Mesh {
	// STL carries no shared vertex table; synthesize one with a flat
	// 3-per-triangle layout so the unified Mesh representation still holds.
	vertices := make([]geom.Vec3, 0, len(triangles)*3)
	for _, tri := range triangles {
		vertices = append(vertices, tri.V0, tri.V1, tri.V2)
	}
	return &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
		Materials: map[string]Material{},
	}
}
