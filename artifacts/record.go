package artifacts

import (
	"fmt"
	"strings"
)

// Format is the on-disk image encoding.
type Format string

const (
	// FormatJPEG is lossy; written at JPEGQuality with alpha flattened onto white.
	FormatJPEG Format = "jpg"
	// FormatPNG is lossless.
	FormatPNG Format = "png"
)

// ParseFormat accepts jpg, jpeg and png in any case. Empty means jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want jpg or png)", s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Provenance describes how an image was produced. The store turns it into a Record.
type Provenance struct {
	Prompt       string
	Width        int
	Height       int
	Format       Format
	Steps        int
	Seed         int64
	Model        string
	Service      string // "primary" or "secondary"
	OriginalSize string // size generated before resizing, secondary only
	OutputName   string // caller-chosen base name; empty derives one from the prompt
}

// Record is the sidecar JSON written next to every image. It is never rewritten.
type Record struct {
	Prompt       string `json:"prompt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Format       Format `json:"format"`
	Steps        int    `json:"num_inference_steps"`
	Seed         int64  `json:"seed"`
	Model        string `json:"model"`
	Service      string `json:"service"`
	OriginalSize string `json:"original_size,omitempty"`
	Timestamp    string `json:"timestamp"`
	Filename     string `json:"filename"`
}

// ImageFormat returns the record's format, treating unknown values as jpg.
func (r *Record) ImageFormat() Format {
	if r.Format == FormatPNG {
		return FormatPNG
	}
	return FormatJPEG
}
