// Package tiles3d wraps binary glTF payloads in the Cesium 3D Tiles tile
// formats: Batched 3D Model (b3dm), Instanced 3D Model (i3dm), Point Cloud
// (pnts), and Composite (cmpt).
package tiles3d

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

const (
	magicB3DM = "b3dm"
	magicI3DM = "i3dm"
	magicPNTS = "pnts"
	magicCMPT = "cmpt"

	tileFormatVersion = 1
)

// padJSON pads a JSON byte slice to a 4-byte boundary with trailing spaces
// (0x20), per the 3D Tiles tile-format alignment rule.
func padJSON(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, ' ')
	}
	return b
}

// padBinary pads a binary byte slice to a 4-byte boundary with trailing
// zero bytes, per the 3D Tiles tile-format alignment rule.
func padBinary(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// EncodeB3DM wraps glb in a Batched 3D Model tile. batchLength is the
// number of distinct features (materials/objects) batched inside glb;
// batchTable, if non-nil, is merged into the per-feature batch table JSON.
func EncodeB3DM(glb []byte, batchLength int, batchTable map[string]interface{}) ([]byte, error) {
	featureTable := padJSON(mustJSON(map[string]interface{}{
		"BATCH_LENGTH": batchLength,
	}))

	batchJSON := []byte("{}")
	if len(batchTable) > 0 {
		var err error
		batchJSON, err = json.Marshal(batchTable)
		if err != nil {
			return nil, fmt.Errorf("tiles3d: marshaling b3dm batch table: %w", err)
		}
	}
	batchJSON = padJSON(batchJSON)

	const headerSize = 28
	total := headerSize + len(featureTable) + len(batchJSON) + len(glb)

	var out bytes.Buffer
	out.Grow(total)
	out.WriteString(magicB3DM)
	writeUint32(&out, tileFormatVersion)
	writeUint32(&out, uint32(total))
	writeUint32(&out, uint32(len(featureTable)))
	writeUint32(&out, 0) // feature table binary length
	writeUint32(&out, uint32(len(batchJSON)))
	writeUint32(&out, 0) // batch table binary length

	out.Write(featureTable)
	out.Write(batchJSON)
	out.Write(glb)

	return out.Bytes(), nil
}

// Instance is one placement of an instanced model inside an i3dm tile.
type Instance struct {
	Position geom.Vec3
}

// EncodeI3DM wraps glb (referenced by embedded reference, gltfFormat=1) in
// an Instanced 3D Model tile with one feature per instance.
func EncodeI3DM(glb []byte, instances []Instance) ([]byte, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("tiles3d: i3dm requires at least one instance")
	}

	positions := make([]float32, 0, len(instances)*3)
	for _, inst := range instances {
		positions = append(positions,
			float32(inst.Position.X), float32(inst.Position.Y), float32(inst.Position.Z))
	}

	var posBin bytes.Buffer
	for _, f := range positions {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		posBin.Write(b[:])
	}
	posBody := padBinary(posBin.Bytes())

	featureTable := padJSON(mustJSON(map[string]interface{}{
		"INSTANCES_LENGTH": len(instances),
		"POSITION":         map[string]int{"byteOffset": 0},
	}))

	const headerSize = 32
	// gltfFormat=1: the glTF content immediately follows the tables as an
	// embedded binary blob rather than a URI string.
	total := headerSize + len(featureTable) + len(posBody) + len(glb)

	var out bytes.Buffer
	out.Grow(total)
	out.WriteString(magicI3DM)
	writeUint32(&out, tileFormatVersion)
	writeUint32(&out, uint32(total))
	writeUint32(&out, uint32(len(featureTable)))
	writeUint32(&out, uint32(len(posBody)))
	writeUint32(&out, 0) // batch table JSON length
	writeUint32(&out, 0) // batch table binary length
	writeUint32(&out, 1) // gltfFormat: embedded

	out.Write(featureTable)
	out.Write(posBody)
	out.Write(glb)

	return out.Bytes(), nil
}

// EncodePNTS encodes a plain point cloud from raw positions (and, when
// non-nil, parallel per-point RGB colors) as a Point Cloud tile.
func EncodePNTS(positions []geom.Vec3, colors [][3]byte) ([]byte, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("tiles3d: pnts requires at least one point")
	}
	if colors != nil && len(colors) != len(positions) {
		return nil, fmt.Errorf("tiles3d: colors length %d does not match positions length %d", len(colors), len(positions))
	}

	var posBin bytes.Buffer
	for _, p := range positions {
		for _, c := range [3]float32{float32(p.X), float32(p.Y), float32(p.Z)} {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(c))
			posBin.Write(b[:])
		}
	}

	ft := map[string]interface{}{
		"POINTS_LENGTH": len(positions),
		"POSITION":      map[string]int{"byteOffset": 0},
	}

	var colorBin bytes.Buffer
	if colors != nil {
		ft["RGB"] = map[string]int{"byteOffset": posBin.Len()}
		for _, c := range colors {
			colorBin.Write(c[:])
		}
	}

	body := append(posBin.Bytes(), colorBin.Bytes()...)
	body = padBinary(body)

	featureTable := padJSON(mustJSON(ft))

	const headerSize = 28
	total := headerSize + len(featureTable) + len(body)

	var out bytes.Buffer
	out.Grow(total)
	out.WriteString(magicPNTS)
	writeUint32(&out, tileFormatVersion)
	writeUint32(&out, uint32(total))
	writeUint32(&out, uint32(len(featureTable)))
	writeUint32(&out, uint32(len(body)))
	writeUint32(&out, 0) // batch table JSON length
	writeUint32(&out, 0) // batch table binary length

	out.Write(featureTable)
	out.Write(body)

	return out.Bytes(), nil
}

// EncodeCMPT concatenates already-encoded inner tiles (b3dm/i3dm/pnts, or
// even nested cmpt) into a Composite tile.
func EncodeCMPT(inner [][]byte) ([]byte, error) {
	if len(inner) == 0 {
		return nil, fmt.Errorf("tiles3d: cmpt requires at least one inner tile")
	}

	const headerSize = 16
	total := headerSize
	for _, t := range inner {
		total += len(t)
	}

	var out bytes.Buffer
	out.Grow(total)
	out.WriteString(magicCMPT)
	writeUint32(&out, tileFormatVersion)
	writeUint32(&out, uint32(total))
	writeUint32(&out, uint32(len(inner)))

	for _, t := range inner {
		out.Write(t)
	}

	return out.Bytes(), nil
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tiles3d: marshaling feature table: %v", err))
	}
	return b
}
