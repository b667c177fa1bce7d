// Package texture repacks a mesh's per-material textures into tile-ready
// assets: downscaling large source textures with golang.org/x/image/draw
// and, optionally, re-encoding them as WebP via gen2brain/webp so embedded
// GLB buffers stay small.
package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"

	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

// Options controls how Repack resamples and re-encodes a texture.
type Options struct {
	MaxDimension int  // 0 disables downscaling
	WebP         bool // re-encode as WebP regardless of source format
	Quality      float32
}

// DefaultOptions mirrors a conservative tile-budget-friendly repack: cap at
// 1024px and compress to WebP.
func DefaultOptions() Options {
	return Options{MaxDimension: 1024, WebP: true, Quality: 80}
}

// Repack decodes t's image data, downscales it to fit within
// opts.MaxDimension (if set and the source is larger), re-encodes it as
// WebP when requested, and returns a new Texture with the result. The
// input Texture is left untouched.
func Repack(t *mesh.Texture, opts Options) (*mesh.Texture, error) {
	if t == nil || len(t.Data) == 0 {
		return nil, fmt.Errorf("texture: nothing to repack")
	}

	src, _, err := image.Decode(bytes.NewReader(t.Data))
	if err != nil {
		return nil, fmt.Errorf("texture: decoding %s: %w", t.Path, err)
	}

	resized := downscale(src, opts.MaxDimension)

	mime := t.Mime
	var out bytes.Buffer
	if opts.WebP {
		quality := opts.Quality
		if quality <= 0 {
			quality = 80
		}
		if err := webp.Encode(&out, resized, webp.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("texture: encoding webp for %s: %w", t.Path, err)
		}
		mime = "image/webp"
	} else {
		if err := encodeSameFormat(&out, resized, mime); err != nil {
			return nil, err
		}
	}

	return &mesh.Texture{Path: t.Path, Data: out.Bytes(), Mime: mime}, nil
}

// downscale returns img unchanged if it already fits within maxDim on both
// axes (or maxDim is 0), otherwise resamples it to the largest size that
// preserves aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	scale := float64(maxDim) / float64(w)
	if hScale := float64(maxDim) / float64(h); hScale < scale {
		scale = hScale
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodeSameFormat(out *bytes.Buffer, img image.Image, mime string) error {
	switch mime {
	case "image/jpeg":
		return jpegEncode(out, img)
	default:
		return pngEncode(out, img)
	}
}
