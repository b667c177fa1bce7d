package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

func pngTexture(w, h int) *mesh.Texture {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return &mesh.Texture{Path: "tex.png", Data: buf.Bytes(), Mime: "image/png"}
}

func TestRepackNilErrors(t *testing.T) {
	if _, err := Repack(nil, DefaultOptions()); err == nil {
		t.Fatal("Repack(nil): want error, got nil")
	}
}

func TestDownscaleShrinksOversizedTexture(t *testing.T) {
	src := pngTexture(2048, 1024)
	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	out := downscale(img, 512)
	b := out.Bounds()
	if b.Dx() > 512 || b.Dy() > 512 {
		t.Errorf("downscale() = %dx%d, want both dims <= 512", b.Dx(), b.Dy())
	}
}

func TestDownscaleLeavesSmallTextureAlone(t *testing.T) {
	src := pngTexture(64, 32)
	img, _, _ := image.Decode(bytes.NewReader(src.Data))
	out := downscale(img, 512)
	if out != img {
		t.Error("downscale() resampled a texture already within bounds")
	}
}
