package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	_ "golang.org/x/image/webp"
)

// MaxImageBytes bounds any single image body read from a provider.
const MaxImageBytes = 32 << 20

// Downloader fetches generated images from the temporary URLs some providers
// return instead of pixels. URLs typically expire within an hour, so the
// download happens inside the same attempt.
//
// Thread Safety: Downloader is safe for concurrent use.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a Downloader. A nil client uses http.DefaultClient.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

// DownloadBytes fetches url and returns the body and its Content-Type.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("imagegen: URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to create download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagegen: download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to read image data: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("imagegen: image exceeds %d bytes", MaxImageBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// DownloadImage fetches url and decodes it.
func (d *Downloader) DownloadImage(ctx context.Context, url string) (image.Image, error) {
	data, _, err := d.DownloadBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	return decodeImage(data)
}

// decodeImage decodes PNG, JPEG or WebP bytes.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("imagegen: empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to decode image: %w", err)
	}
	return img, nil
}
