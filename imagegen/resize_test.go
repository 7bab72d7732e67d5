package imagegen

import "testing"

func TestNearestSize(t *testing.T) {
	tests := []struct {
		w, h int
		want ImageSize
	}{
		{1344, 768, ImageSize{1792, 1024}},
		{768, 1344, ImageSize{1024, 1792}},
		{1024, 1024, ImageSize{1024, 1024}},
		{1100, 1000, ImageSize{1024, 1024}},
		{3000, 1000, ImageSize{1792, 1024}},
		{256, 2048, ImageSize{1024, 1792}},
	}
	for _, tt := range tests {
		if got := NearestSize(tt.w, tt.h, SecondarySizes); got != tt.want {
			t.Errorf("NearestSize(%d, %d) = %s, want %s", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNearestSize_Degenerate(t *testing.T) {
	if got := NearestSize(10, 20, nil); got != (ImageSize{10, 20}) {
		t.Errorf("no supported sizes: got %s", got)
	}
	if got := NearestSize(0, 20, SecondarySizes); got != (ImageSize{0, 20}) {
		t.Errorf("zero width: got %s", got)
	}
}

// TestNearestSize_TieGoesToFirst tests that equidistant ratios pick the earlier entry.
func TestNearestSize_TieGoesToFirst(t *testing.T) {
	supported := []ImageSize{{200, 100}, {100, 200}}
	if got := NearestSize(100, 100, supported); got != supported[0] {
		t.Errorf("got %s, want %s", got, supported[0])
	}
}

func TestResizeExact(t *testing.T) {
	src := solidImage(1792, 1024)
	dst := ResizeExact(src, 1344, 768)
	if b := dst.Bounds(); b.Dx() != 1344 || b.Dy() != 768 {
		t.Fatalf("size = %dx%d, want 1344x768", b.Dx(), b.Dy())
	}
	r, g, b, _ := dst.At(600, 400).RGBA()
	if !near(r>>8, 200) || !near(g>>8, 100) || !near(b>>8, 50) {
		t.Errorf("center pixel = %d,%d,%d, want 200,100,50", r>>8, g>>8, b>>8)
	}

	if same := ResizeExact(src, 1792, 1024); same != src {
		t.Error("resizing to the current size should return src")
	}
}

func TestImageSize_String(t *testing.T) {
	if got := (ImageSize{1792, 1024}).String(); got != "1792x1024" {
		t.Errorf("String() = %q", got)
	}
}

func near(got, want uint32) bool {
	return got+1 >= want && got <= want+1
}
