// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Uncompressible-ish content so byte limits actually bite.
			img.Set(x, y, color.RGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 13) % 256),
				B: uint8((x*y + x) % 256),
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEnsureWithinLimits_Passthrough(t *testing.T) {
	data := encodePNG(t, noisyImage(100, 80))

	out, mime, err := EnsureWithinLimits(data, "image/png", Limits{})
	require.NoError(t, err)
	assert.Equal(t, data, out, "unlimited means untouched")
	assert.Equal(t, "image/png", mime)

	out, mime, err = EnsureWithinLimits(data, "image/png", Limits{MaxBytes: len(data) + 1})
	require.NoError(t, err)
	assert.Equal(t, data, out, "within byte limit means untouched")
	assert.Equal(t, "image/png", mime)
}

func TestEnsureWithinLimits_CompliantImageUntouched(t *testing.T) {
	data := encodePNG(t, noisyImage(100, 100))

	// Both ceilings set, both satisfied: no recompression, no PNG-to-JPEG
	// conversion that would flatten transparency.
	out, mime, err := EnsureWithinLimits(data, "image/png", Limits{MaxBytes: 1 << 20, MaxDimension: 4096})
	require.NoError(t, err)
	assert.Equal(t, data, out, "compliant bytes must come back verbatim")
	assert.Equal(t, "image/png", mime)
}

func TestEnsureWithinLimits_DimensionOnlyKeepsPNG(t *testing.T) {
	data := encodePNG(t, noisyImage(400, 200))

	out, mime, err := EnsureWithinLimits(data, "image/png", Limits{MaxDimension: 100})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	img, format, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestEnsureWithinLimits_ByteLimitReencodesJPEG(t *testing.T) {
	data := encodePNG(t, noisyImage(600, 600))
	limit := len(data) / 4

	out, mime, err := EnsureWithinLimits(data, "image/png", Limits{MaxBytes: limit})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.LessOrEqual(t, len(out), limit)

	_, format, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestEnsureWithinLimits_GarbageInput(t *testing.T) {
	_, _, err := EnsureWithinLimits([]byte("not an image"), "image/png", Limits{MaxDimension: 100})
	assert.Error(t, err)
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		maxDim int
		wantW  int
		wantH  int
	}{
		{"landscape", 1000, 500, 200, 200, 100},
		{"portrait", 500, 1000, 200, 100, 200},
		{"square", 300, 300, 150, 150, 150},
		{"already small", 100, 50, 200, 100, 50},
		{"no limit", 100, 50, 0, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Downscale(noisyImage(tt.w, tt.h), tt.maxDim)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}
