package texture

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
)

// jpegEncode and pngEncode exist only for the opts.WebP=false passthrough
// path; the decode side already depends on the stdlib image/jpeg and
// image/png codecs (registered via blank import in texture.go), so no
// additional third-party encoder is warranted for the same formats.
func jpegEncode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}

func pngEncode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
