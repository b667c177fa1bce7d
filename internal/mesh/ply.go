package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
	plyBinaryBE
)

type plyPropertyKind int

const (
	plyScalar plyPropertyKind = iota
	plyList
)

type plyProperty struct {
	kind      plyPropertyKind
	name      string
	scalar    string // scalar type name
	countType string // list: count type
	itemType  string // list: item type
}

type plyElement struct {
	name       string
	count      int
	properties []plyProperty
}

// plySizeOf returns the byte width of a PLY scalar type name, normalizing
// the short and long-form aliases the format allows.
func plySizeOf(t string) int {
	switch t {
	case "char", "uchar", "int8", "uint8":
		return 1
	case "short", "ushort", "int16", "uint16":
		return 2
	case "int", "uint", "int32", "uint32", "float", "float32":
		return 4
	case "double", "float64":
		return 8
	default:
		return 0
	}
}

func parsePLY(data []byte) (*Mesh, error) {
	marker := []byte("end_header\n")
	headerEnd := bytes.Index(data, marker)
	if headerEnd < 0 {
		marker = []byte("end_header\r\n")
		headerEnd = bytes.Index(data, marker)
		if headerEnd < 0 {
			return nil, newEmptyModelError(0, "UTF-8")
		}
	}
	bodyStart := headerEnd + len(marker)

	headerText := string(data[:headerEnd])
	format, elements, err := parsePLYHeader(headerText)
	if err != nil {
		return nil, err
	}

	body := data[bodyStart:]

	var vertices []geom.Vec3
	var normals []geom.Vec3
	var uvs []geom.UV
	var faceVertexIndices [][]int

	var scanner *bufio.Scanner
	if format == plyASCII {
		scanner = bufio.NewScanner(bytes.NewReader(body))
		scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	}

	offset := 0
	byteOrder := binary.ByteOrder(binary.LittleEndian)
	if format == plyBinaryBE {
		byteOrder = binary.BigEndian
	}

	for _, el := range elements {
		isVertex := el.name == "vertex"
		isFace := el.name == "face"

		xIdx, yIdx, zIdx := -1, -1, -1
		nxIdx, nyIdx, nzIdx := -1, -1, -1
		uIdx, vIdx := -1, -1
		for i, p := range el.properties {
			switch p.name {
			case "x":
				xIdx = i
			case "y":
				yIdx = i
			case "z":
				zIdx = i
			case "nx":
				nxIdx = i
			case "ny":
				nyIdx = i
			case "nz":
				nzIdx = i
			case "s", "u", "texture_u":
				uIdx = i
			case "t", "v", "texture_v":
				vIdx = i
			}
		}

		for r := 0; r < el.count; r++ {
			if format == plyASCII {
				if !scanner.Scan() {
					return nil, newEmptyModelError(r, "ASCII")
				}
				fields := strings.Fields(scanner.Text())
				values, lists, ferr := parsePLYASCIIRecord(el, fields)
				if ferr != nil {
					continue
				}
				if isVertex {
					vertices = append(vertices, geom.Vec3{X: values[xIdx], Y: values[yIdx], Z: values[zIdx]})
					if nxIdx >= 0 && nyIdx >= 0 && nzIdx >= 0 {
						normals = append(normals, geom.Vec3{X: values[nxIdx], Y: values[nyIdx], Z: values[nzIdx]})
					}
					if uIdx >= 0 && vIdx >= 0 {
						uvs = append(uvs, geom.UV{U: values[uIdx], V: values[vIdx]})
					}
				} else if isFace && len(lists) > 0 {
					faceVertexIndices = append(faceVertexIndices, lists[0])
				}
			} else {
				values, lists, n, perr := parsePLYBinaryRecord(el, body[offset:], byteOrder)
				if perr != nil {
					return nil, perr
				}
				offset += n
				if isVertex {
					vertices = append(vertices, geom.Vec3{X: values[xIdx], Y: values[yIdx], Z: values[zIdx]})
					if nxIdx >= 0 && nyIdx >= 0 && nzIdx >= 0 {
						normals = append(normals, geom.Vec3{X: values[nxIdx], Y: values[nyIdx], Z: values[nzIdx]})
					}
					if uIdx >= 0 && vIdx >= 0 {
						uvs = append(uvs, geom.UV{U: values[uIdx], V: values[vIdx]})
					}
				} else if isFace && len(lists) > 0 {
					faceVertexIndices = append(faceVertexIndices, lists[0])
				}
			}
		}
	}

	if len(vertices) == 0 {
		return nil, newEmptyModelError(0, "UTF-8")
	}

	hasNormals := len(normals) == len(vertices) && len(normals) > 0
	hasUVs := len(uvs) == len(vertices) && len(uvs) > 0

	var triangles []geom.Triangle
	for _, idxList := range faceVertexIndices {
		triangles = append(triangles, fanTriangulatePLY(idxList, vertices, normals, uvs, hasNormals, hasUVs)...)
	}

	if len(triangles) == 0 {
		return nil, newEmptyModelError(0, "UTF-8")
	}

	return &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
		Materials: map[string]Material{},
	}, nil
}

func fanTriangulatePLY(idx []int, vertices []geom.Vec3, normals []geom.Vec3, uvs []geom.UV, hasNormals, hasUVs bool) []geom.Triangle {
	if len(idx) < 3 {
		return nil
	}
	valid := func(i int) bool { return i >= 0 && i < len(vertices) }
	for _, i := range idx {
		if !valid(i) {
			return nil
		}
	}

	getN := func(i int) geom.Vec3 {
		if hasNormals {
			return normals[i]
		}
		return geom.Vec3{}
	}
	getUV := func(i int) geom.UV {
		if hasUVs {
			return uvs[i]
		}
		return geom.UV{}
	}

	out := make([]geom.Triangle, 0, len(idx)-2)
	for k := 1; k < len(idx)-1; k++ {
		i0, ik, ik1 := idx[0], idx[k], idx[k+1]
		out = append(out, geom.Triangle{
			V0: vertices[i0], V1: vertices[ik], V2: vertices[ik1],
			HasNormals: hasNormals,
			N0:         getN(i0), N1: getN(ik), N2: getN(ik1),
			HasUVs: hasUVs,
			UV0:    getUV(i0), UV1: getUV(ik), UV2: getUV(ik1),
		})
	}
	return out
}

func parsePLYHeader(header string) (plyFormat, []plyElement, error) {
	lines := strings.Split(header, "\n")
	var format plyFormat
	var elements []plyElement
	formatSeen := false

	for _, raw := range lines {
		line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
		if line == "" || line == "ply" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
			continue
		case "format":
			if len(fields) < 2 {
				return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "malformed format line"}
			}
			switch fields[1] {
			case "ascii":
				format = plyASCII
			case "binary_little_endian":
				format = plyBinaryLE
			case "binary_big_endian":
				format = plyBinaryBE
			default:
				return 0, nil, &ParseError{Kind: ErrUnsupportedFormat, Message: fmt.Sprintf("unknown PLY format %q", fields[1])}
			}
			formatSeen = true
		case "element":
			if len(fields) < 3 {
				return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "malformed element line"}
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil {
				return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "malformed element count"}
			}
			elements = append(elements, plyElement{name: fields[1], count: count})
		case "property":
			if len(elements) == 0 || len(fields) < 3 {
				return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "property before any element"}
			}
			el := &elements[len(elements)-1]
			if fields[1] == "list" {
				if len(fields) < 5 {
					return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "malformed list property"}
				}
				el.properties = append(el.properties, plyProperty{
					kind: plyList, countType: fields[2], itemType: fields[3], name: fields[4],
				})
			} else {
				el.properties = append(el.properties, plyProperty{
					kind: plyScalar, scalar: fields[1], name: fields[2],
				})
			}
		}
	}

	if !formatSeen {
		return 0, nil, &ParseError{Kind: ErrCorrupted, Message: "missing format line"}
	}
	return format, elements, nil
}

func parsePLYASCIIRecord(el plyElement, fields []string) ([]float64, [][]int, error) {
	values := make([]float64, len(el.properties))
	var lists [][]int
	fi := 0
	for i, p := range el.properties {
		if fi >= len(fields) {
			return nil, nil, fmt.Errorf("truncated record")
		}
		if p.kind == plyScalar {
			v, err := strconv.ParseFloat(fields[fi], 64)
			if err != nil {
				return nil, nil, err
			}
			values[i] = v
			fi++
		} else {
			n, err := strconv.Atoi(fields[fi])
			if err != nil {
				return nil, nil, err
			}
			fi++
			idx := make([]int, n)
			for k := 0; k < n; k++ {
				if fi >= len(fields) {
					return nil, nil, fmt.Errorf("truncated list")
				}
				v, err := strconv.Atoi(fields[fi])
				if err != nil {
					return nil, nil, err
				}
				idx[k] = v
				fi++
			}
			lists = append(lists, idx)
		}
	}
	return values, lists, nil
}

func parsePLYBinaryRecord(el plyElement, data []byte, bo binary.ByteOrder) ([]float64, [][]int, int, error) {
	values := make([]float64, len(el.properties))
	var lists [][]int
	offset := 0

	readScalar := func(t string) (float64, error) {
		size := plySizeOf(t)
		if size == 0 || offset+size > len(data) {
			return 0, fmt.Errorf("truncated PLY binary record")
		}
		b := data[offset : offset+size]
		offset += size
		switch t {
		case "char", "int8":
			return float64(int8(b[0])), nil
		case "uchar", "uint8":
			return float64(b[0]), nil
		case "short", "int16":
			return float64(int16(bo.Uint16(b))), nil
		case "ushort", "uint16":
			return float64(bo.Uint16(b)), nil
		case "int", "int32":
			return float64(int32(bo.Uint32(b))), nil
		case "uint", "uint32":
			return float64(bo.Uint32(b)), nil
		case "float", "float32":
			return float64(math.Float32frombits(bo.Uint32(b))), nil
		case "double", "float64":
			return math.Float64frombits(bo.Uint64(b)), nil
		default:
			return 0, fmt.Errorf("unknown PLY scalar type %q", t)
		}
	}

	for i, p := range el.properties {
		if p.kind == plyScalar {
			v, err := readScalar(p.scalar)
			if err != nil {
				return nil, nil, 0, err
			}
			values[i] = v
		} else {
			cnt, err := readScalar(p.countType)
			if err != nil {
				return nil, nil, 0, err
			}
			n := int(cnt)
			idx := make([]int, n)
			for k := 0; k < n; k++ {
				v, err := readScalar(p.itemType)
				if err != nil {
					return nil, nil, 0, err
				}
				idx[k] = int(v)
			}
			lists = append(lists, idx)
		}
	}

	return values, lists, offset, nil
}
