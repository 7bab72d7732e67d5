package artifacts

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestEncode_JPEGFlattensAlphaOntoWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // fully transparent

	var buf bytes.Buffer
	if err := Encode(&buf, src, FormatJPEG); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(4, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("pixel = (%d,%d,%d), want near white", r>>8, g>>8, b>>8)
	}
}

func TestEncode_PNGPreservesPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	var buf bytes.Buffer
	if err := Encode(&buf, src, FormatPNG); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	img, _, err := image.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA); got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("pixel = %+v, want {10 20 30}", got)
	}
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, image.NewGray(image.Rect(0, 0, 1, 1)), "bmp"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
