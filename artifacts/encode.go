package artifacts

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
)

// JPEGQuality is the encoder quality for FormatJPEG.
const JPEGQuality = 95

// Encode writes img in format f. JPEG output has transparency flattened onto white.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: JPEGQuality})
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// flatten composites img over an opaque white background.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
