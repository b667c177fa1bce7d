package gltfenc

import (
	"encoding/binary"
	"testing"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

func triMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Triangles: []geom.Triangle{
			{
				V0: geom.Vec3{X: 0, Y: 0, Z: 0},
				V1: geom.Vec3{X: 1, Y: 0, Z: 0},
				V2: geom.Vec3{X: 0, Y: 1, Z: 0},
			},
		},
		Materials: map[string]mesh.Material{},
	}
}

func TestEncodeProducesValidGLBHeader(t *testing.T) {
	glb, err := Encode(triMesh())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(glb) < 12 {
		t.Fatalf("glb too short: %d bytes", len(glb))
	}
	if magic := binary.LittleEndian.Uint32(glb[0:4]); magic != glbMagic {
		t.Errorf("magic = %x, want %x", magic, glbMagic)
	}
	if version := binary.LittleEndian.Uint32(glb[4:8]); version != glbVersion {
		t.Errorf("version = %d, want %d", version, glbVersion)
	}
	total := binary.LittleEndian.Uint32(glb[8:12])
	if int(total) != len(glb) {
		t.Errorf("declared length = %d, actual = %d", total, len(glb))
	}
}

func TestEncodeEmptyMeshErrors(t *testing.T) {
	if _, err := Encode(&mesh.Mesh{}); err == nil {
		t.Fatal("Encode() on empty mesh: want error, got nil")
	}
}

func TestEncodeChunksAreAligned(t *testing.T) {
	glb, err := Encode(triMesh())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	jsonLen := binary.LittleEndian.Uint32(glb[12:16])
	if jsonLen%4 != 0 {
		t.Errorf("JSON chunk length %d not 4-byte aligned", jsonLen)
	}
	binChunkStart := 12 + 8 + int(jsonLen)
	binLen := binary.LittleEndian.Uint32(glb[binChunkStart : binChunkStart+4])
	if binLen%4 != 0 {
		t.Errorf("BIN chunk length %d not 4-byte aligned", binLen)
	}
}
