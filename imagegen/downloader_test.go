package imagegen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDownloader_DownloadImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes(t, 40, 20))
		case "/garbage":
			w.Write([]byte("<html>expired</html>"))
		case "/empty":
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d := NewDownloader(server.Client())

	img, err := d.DownloadImage(context.Background(), server.URL+"/ok.png")
	if err != nil {
		t.Fatalf("DownloadImage() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("size = %dx%d", b.Dx(), b.Dy())
	}

	_, contentType, err := d.DownloadBytes(context.Background(), server.URL+"/ok.png")
	if err != nil || contentType != "image/png" {
		t.Errorf("DownloadBytes() content type = %q, err = %v", contentType, err)
	}

	errorCases := map[string]string{
		"":                      "URL cannot be empty",
		server.URL + "/missing": "status 404",
		server.URL + "/garbage": "decode",
		server.URL + "/empty":   "empty image data",
	}
	for url, want := range errorCases {
		if _, err := d.DownloadImage(context.Background(), url); err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("DownloadImage(%q) error = %v, want it to contain %q", url, err, want)
		}
	}
}

func TestDownloader_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewDownloader(nil).DownloadImage(ctx, server.URL); err == nil {
		t.Error("expected error for canceled context")
	}
}
