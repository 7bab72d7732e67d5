package imagegen

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ImageSize is a width and height in pixels.
type ImageSize struct {
	Width  int
	Height int
}

func (s ImageSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// NearestSize picks the supported size whose aspect ratio is closest to w:h.
// Ratios are compared in log space so 2:1 and 1:2 are equally far from 1:1.
// Ties go to the earlier entry in supported.
func NearestSize(w, h int, supported []ImageSize) ImageSize {
	if len(supported) == 0 || w <= 0 || h <= 0 {
		return ImageSize{Width: w, Height: h}
	}
	target := math.Log(float64(w) / float64(h))

	best := supported[0]
	bestDist := math.Inf(1)
	for _, s := range supported {
		d := math.Abs(math.Log(float64(s.Width)/float64(s.Height)) - target)
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// ResizeExact scales src to exactly w by h with Catmull-Rom resampling.
// src is returned unchanged when it already has that size.
func ResizeExact(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
