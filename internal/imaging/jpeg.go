// Package imaging shrinks captured photos before they are stored on the device.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // PNG decoder
	"strings"

	"fieldsync/internal/fieldsync"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

const (
	DefaultMaxDimension = 1920
	DefaultQuality      = 70
)

// JPEGCompressor re-encodes images as JPEG, downscaling so the longest side
// is at most MaxDimension. Non-image content passes through unchanged.
type JPEGCompressor struct {
	MaxDimension int
	Quality      int
}

// NewJPEGCompressor creates a compressor, applying defaults to zero values.
func NewJPEGCompressor(maxDimension, quality int) *JPEGCompressor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &JPEGCompressor{MaxDimension: maxDimension, Quality: quality}
}

// Compress returns the re-encoded bytes and their content type.
func (c *JPEGCompressor) Compress(data []byte, contentType string) ([]byte, string, error) {
	if !handles(contentType) {
		return data, contentType, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", contentType, err)
	}

	bounds := src.Bounds()
	w, h := scaledSize(bounds.Dx(), bounds.Dy(), c.MaxDimension)
	resized := w != bounds.Dx() || h != bounds.Dy()

	// JPEG has no alpha; flatten onto white so transparent scans stay legible.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, "", fmt.Errorf("encoding jpeg: %w", err)
	}

	if !resized && contentType == "image/jpeg" && out.Len() >= len(data) {
		return data, contentType, nil
	}
	return out.Bytes(), "image/jpeg", nil
}

func handles(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

// scaledSize fits w x h inside a limit x limit box, keeping the aspect ratio.
func scaledSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

var _ fieldsync.Compressor = (*JPEGCompressor)(nil)
