package mesh

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// maxMalformedOBJLines is the malformed-line tolerance from spec.md §4.1.
// It is a fixed constant; no configuration field overrides it.
const maxMalformedOBJLines = 100

type objFaceToken struct {
	v, vt, vn int // 1-based resolved indices; 0 means absent
}

func parseOBJ(data []byte) (*Mesh, error) {
	encodingName, offset := detectEncoding(data)
	body := data[offset:]

	var vertices []geom.Vec3
	var normals []geom.Vec3
	var uvs []geom.UV
	var triangles []geom.Triangle

	malformed := 0
	lineCount := 0
	currentMaterial := ""

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		lineCount++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		directive := fields[0]

		switch directive {
		case "v":
			v, ok := parseOBJVertex(fields[1:])
			if !ok {
				malformed++
				continue
			}
			vertices = append(vertices, v)

		case "vn":
			if len(fields) < 4 {
				malformed++
				continue
			}
			n, ok := parseVec3Fields(fields[1:4])
			if !ok {
				malformed++
				continue
			}
			normals = append(normals, n)

		case "vt":
			if len(fields) < 3 {
				malformed++
				continue
			}
			u, errU := strconv.ParseFloat(fields[1], 64)
			v, errV := strconv.ParseFloat(fields[2], 64)
			if errU != nil || errV != nil {
				malformed++
				continue
			}
			uvs = append(uvs, geom.UV{U: u, V: v})

		case "f":
			tokens := make([]objFaceToken, 0, len(fields)-1)
			ok := true
			for _, tok := range fields[1:] {
				ft, tokOK := parseOBJFaceToken(tok, len(vertices), len(uvs), len(normals))
				if !tokOK {
					ok = false
					break
				}
				tokens = append(tokens, ft)
			}
			if !ok || len(tokens) < 3 {
				malformed++
				continue
			}
			triangles = append(triangles, fanTriangulateOBJ(tokens, vertices, normals, uvs, currentMaterial)...)

		case "usemtl":
			if len(fields) >= 2 {
				currentMaterial = fields[1]
			}

		case "vp", "g", "o", "s", "mtllib":
			// Silently accepted, per spec.md §4.1.

		default:
			// Unknown directive: silently accepted.
		}

		if malformed > maxMalformedOBJLines {
			return nil, newCorruptedError(malformed, maxMalformedOBJLines)
		}
	}
	// Malformed branches continue past the in-loop check, so a budget
	// exceeded on the last malformed line is caught here.
	if malformed > maxMalformedOBJLines {
		return nil, newCorruptedError(malformed, maxMalformedOBJLines)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Kind: ErrCorrupted, Message: err.Error(), LineCount: lineCount}
	}

	if len(vertices) == 0 || len(triangles) == 0 {
		return nil, newEmptyModelError(lineCount, encodingName)
	}

	m := &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
		Materials: map[string]Material{},
	}
	return m, nil
}

func parseOBJVertex(fields []string) (geom.Vec3, bool) {
	if len(fields) < 3 {
		return geom.Vec3{}, false
	}
	v, ok := parseVec3Fields(fields[:3])
	if !ok {
		return geom.Vec3{}, false
	}
	if !v.IsFinite() || math.Abs(v.X) >= 1e10 || math.Abs(v.Y) >= 1e10 || math.Abs(v.Z) >= 1e10 {
		return geom.Vec3{}, false
	}
	return v, true
}

func parseVec3Fields(fields []string) (geom.Vec3, bool) {
	x, errX := strconv.ParseFloat(fields[0], 64)
	y, errY := strconv.ParseFloat(fields[1], 64)
	z, errZ := strconv.ParseFloat(fields[2], 64)
	if errX != nil || errY != nil || errZ != nil {
		return geom.Vec3{}, false
	}
	return geom.Vec3{X: x, Y: y, Z: z}, true
}

// parseOBJFaceToken parses one "v", "v/vt", "v/vt/vn", or "v//vn" token.
// Negative indices are relative to the current vertex/uv/normal counts.
func parseOBJFaceToken(tok string, vertexCount, uvCount, normalCount int) (objFaceToken, bool) {
	parts := strings.Split(tok, "/")
	if len(parts) == 0 || parts[0] == "" {
		return objFaceToken{}, false
	}

	v, ok := resolveOBJIndex(parts[0], vertexCount)
	if !ok {
		return objFaceToken{}, false
	}
	ft := objFaceToken{v: v}

	if len(parts) >= 2 && parts[1] != "" {
		vt, ok := resolveOBJIndex(parts[1], uvCount)
		if !ok {
			return objFaceToken{}, false
		}
		ft.vt = vt
	}
	if len(parts) >= 3 && parts[2] != "" {
		vn, ok := resolveOBJIndex(parts[2], normalCount)
		if !ok {
			return objFaceToken{}, false
		}
		ft.vn = vn
	}

	return ft, true
}

// resolveOBJIndex converts an OBJ 1-based (or negative, relative) index
// token into a 1-based absolute index, per spec.md §4.1.
func resolveOBJIndex(s string, count int) (int, bool) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if idx < 0 {
		resolved := count + idx + 1
		if resolved < 1 || resolved > count {
			return 0, false
		}
		return resolved, true
	}
	if idx < 1 || idx > count {
		return 0, false
	}
	return idx, true
}

// fanTriangulateOBJ fan-triangulates a polygon face: for tokens t0..tn-1,
// emits triangles (t0, tk, tk+1) for k=1..n-2.
func fanTriangulateOBJ(tokens []objFaceToken, vertices []geom.Vec3, normals []geom.Vec3, uvs []geom.UV, material string) []geom.Triangle {
	toVertex := func(ft objFaceToken) (geom.Vec3, geom.Vec3, bool, geom.UV, bool) {
		v := vertices[ft.v-1]
		var n geom.Vec3
		hasN := ft.vn != 0
		if hasN {
			n = normals[ft.vn-1]
		}
		var uv geom.UV
		hasUV := ft.vt != 0
		if hasUV {
			uv = uvs[ft.vt-1]
		}
		return v, n, hasN, uv, hasUV
	}

	v0, n0, hasN0, uv0, hasUV0 := toVertex(tokens[0])

	out := make([]geom.Triangle, 0, len(tokens)-2)
	for k := 1; k < len(tokens)-1; k++ {
		vk, nk, hasNk, uvk, hasUVk := toVertex(tokens[k])
		vk1, nk1, hasNk1, uvk1, hasUVk1 := toVertex(tokens[k+1])

		hasNormals := hasN0 && hasNk && hasNk1
		hasUVs := hasUV0 && hasUVk && hasUVk1

		out = append(out, geom.Triangle{
			V0: v0, V1: vk, V2: vk1,
			HasNormals: hasNormals,
			N0:         n0, N1: nk, N2: nk1,
			HasUVs: hasUVs,
			UV0:    uv0, UV1: uvk, UV2: uvk1,
			Material: material,
		})
	}
	return out
}
