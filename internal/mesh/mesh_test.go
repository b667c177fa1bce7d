package mesh

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

const cubeOBJ = `# unit cube
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
f 1 2 3 4
f 5 8 7 6
f 1 5 6 2
f 2 6 7 3
f 3 7 8 4
f 4 8 5 1
`

func TestParseOBJCube(t *testing.T) {
	m, err := parseOBJ([]byte(cubeOBJ))
	if err != nil {
		t.Fatalf("parseOBJ: %v", err)
	}
	if len(m.Vertices) != 8 {
		t.Errorf("vertices = %d, want 8", len(m.Vertices))
	}
	// 6 quads, fan-triangulated into 2 triangles each = 12.
	if len(m.Triangles) != 12 {
		t.Errorf("triangles = %d, want 12", len(m.Triangles))
	}
	box := m.AABB()
	if box.Min != (box.Min) {
		t.Fatal("unreachable")
	}
	if math.Abs(box.Min.X) > 1e-9 || math.Abs(box.Max.X-1) > 1e-9 {
		t.Errorf("AABB X = [%v, %v], want [0,1]", box.Min.X, box.Max.X)
	}
}

func TestParseOBJNegativeIndices(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf -3 -2 -1\n"
	m, err := parseOBJ([]byte(src))
	if err != nil {
		t.Fatalf("parseOBJ: %v", err)
	}
	if len(m.Triangles) != 1 {
		t.Fatalf("triangles = %d, want 1", len(m.Triangles))
	}
}

func TestParseOBJTooManyErrors(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")
	for i := 0; i < maxMalformedOBJLines+1; i++ {
		buf.WriteString("v not a number here\n")
	}
	_, err := parseOBJ(buf.Bytes())
	if err == nil {
		t.Fatal("expected ParseError::Corrupted")
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Kind != ErrCorrupted {
		t.Fatalf("err = %v, want ErrCorrupted", err)
	}
}

func TestParseOBJEmptyModel(t *testing.T) {
	_, err := parseOBJ([]byte("# nothing here\n"))
	if err == nil {
		t.Fatal("expected ParseError::EmptyModel")
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Kind != ErrEmptyModel {
		t.Fatalf("err = %v, want ErrEmptyModel", err)
	}
}

func buildBinarySTLCube() []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, stlHeaderSize))

	triangles := [][3][3]float32{
		{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		{{0, 0, 0}, {1, 1, 0}, {0, 1, 0}},
	}
	binary.Write(&buf, binary.LittleEndian, uint32(len(triangles)))
	for _, tri := range triangles {
		var normal [3]float32
		binary.Write(&buf, binary.LittleEndian, normal)
		for _, v := range tri {
			binary.Write(&buf, binary.LittleEndian, v)
		}
		binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func TestParseSTLBinary(t *testing.T) {
	data := buildBinarySTLCube()
	m, err := parseSTL(data)
	if err != nil {
		t.Fatalf("parseSTL: %v", err)
	}
	if len(m.Triangles) != 2 {
		t.Fatalf("triangles = %d, want 2", len(m.Triangles))
	}
}

func TestParseSTLASCII(t *testing.T) {
	src := `solid test
facet normal 0 0 1
outer loop
vertex 0 0 0
vertex 1 0 0
vertex 0 1 0
endloop
endfacet
endsolid test
`
	m, err := parseSTL([]byte(src))
	if err != nil {
		t.Fatalf("parseSTL: %v", err)
	}
	if len(m.Triangles) != 1 {
		t.Fatalf("triangles = %d, want 1", len(m.Triangles))
	}
}

const triPLYASCII = `ply
format ascii 1.0
element vertex 3
property float x
property float y
property float z
element face 1
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
0 1 0
3 0 1 2
`

func TestParsePLYASCII(t *testing.T) {
	m, err := parsePLY([]byte(triPLYASCII))
	if err != nil {
		t.Fatalf("parsePLY: %v", err)
	}
	if len(m.Vertices) != 3 || len(m.Triangles) != 1 {
		t.Fatalf("vertices=%d triangles=%d, want 3/1", len(m.Vertices), len(m.Triangles))
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"cube.obj", FormatOBJ},
		{"cube.stl", FormatSTL},
		{"cube.ply", FormatPLY},
		{"cube.gltf", FormatGLTF},
		{"cube.glb", FormatGLTF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name, nil)
			if err != nil {
				t.Fatalf("DetectFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDetectEncodingBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("v 0 0 0\n")...)
	enc, offset := detectEncoding(data)
	if enc != "UTF-8-BOM" || offset != 3 {
		t.Errorf("detectEncoding() = (%s, %d), want (UTF-8-BOM, 3)", enc, offset)
	}
}
