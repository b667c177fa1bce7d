package mesh

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the four supported ingest formats.
type Format int

const (
	FormatOBJ Format = iota
	FormatSTL
	FormatPLY
	FormatGLTF
)

func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "obj"
	case FormatSTL:
		return "stl"
	case FormatPLY:
		return "ply"
	case FormatGLTF:
		return "gltf"
	default:
		return "unknown"
	}
}

// glbMagic is the 4-byte little-endian GLB magic number (spells "glTF").
const glbMagic = 0x46546C67

// DetectFormat selects a Format by file extension, falling back to
// magic-number sniffing per spec.md §4.1.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".obj":
		return FormatOBJ, nil
	case ".stl":
		return FormatSTL, nil
	case ".ply":
		return FormatPLY, nil
	case ".gltf", ".glb":
		return FormatGLTF, nil
	}

	if len(data) >= 4 {
		magic := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		if magic == glbMagic {
			return FormatGLTF, nil
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("ply")) {
		return FormatPLY, nil
	}
	if len(data) >= 80 {
		header := bytes.ToLower(bytes.TrimSpace(data[:80]))
		_ = header // STL binary/ASCII disambiguation happens inside the STL parser
	}
	if looksLikeOBJ(data) {
		return FormatOBJ, nil
	}

	return 0, &ParseError{Kind: ErrUnsupportedFormat, Message: fmt.Sprintf("cannot determine format of %q", filename)}
}

func looksLikeOBJ(data []byte) bool {
	for _, line := range bytes.SplitN(data, []byte("\n"), 64) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if bytes.HasPrefix(line, []byte("v ")) || bytes.HasPrefix(line, []byte("f ")) {
			return true
		}
	}
	return false
}

// Parse parses raw bytes into a unified Mesh, selecting the parser via
// DetectFormat.
func Parse(filename string, data []byte) (*Mesh, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatOBJ:
		return parseOBJ(data)
	case FormatSTL:
		return parseSTL(data)
	case FormatPLY:
		return parsePLY(data)
	case FormatGLTF:
		return parseGLTF(filename, data)
	default:
		return nil, &ParseError{Kind: ErrUnsupportedFormat, Message: "unknown format"}
	}
}
