// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package imaging enforces vendor payload ceilings. When a source image
// exceeds a backend's byte or dimension limits it is downscaled and
// recompressed instead of being rejected.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Limits describes a vendor's payload constraints. Zero fields mean
// unconstrained.
type Limits struct {
	// MaxBytes is the maximum encoded payload size.
	MaxBytes int

	// MaxDimension bounds both width and height in pixels.
	MaxDimension int
}

// Unlimited reports whether the limits constrain nothing.
func (l Limits) Unlimited() bool {
	return l.MaxBytes <= 0 && l.MaxDimension <= 0
}

const (
	// initialJPEGQuality is the quality used on the first recompression pass.
	initialJPEGQuality = 90

	// minJPEGQuality bounds how far recompression may degrade the image.
	minJPEGQuality = 40
)

// Decode decodes image bytes and reports the detected format ("jpeg", "png").
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EnsureWithinLimits returns image bytes that satisfy the limits, downscaling
// and recompressing as needed. The returned MIME reflects the output encoding:
// PNG sources that only exceed dimension limits stay PNG, anything that needs
// byte-size reduction is re-encoded as JPEG.
func EnsureWithinLimits(data []byte, mime string, limits Limits) ([]byte, string, error) {
	if limits.Unlimited() {
		return data, mime, nil
	}
	if withinByteLimit(data, limits) {
		if limits.MaxDimension <= 0 {
			return data, mime, nil
		}
		// A compliant image passes through untouched. Re-encoding would
		// cost quality and turn PNG transparency into a JPEG backdrop.
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err == nil && cfg.Width <= limits.MaxDimension && cfg.Height <= limits.MaxDimension {
			return data, mime, nil
		}
	}

	img, format, err := Decode(data)
	if err != nil {
		return nil, "", err
	}

	if limits.MaxDimension > 0 {
		img = Downscale(img, limits.MaxDimension)
	}

	// Dimension-only constraint: keep the source encoding where possible.
	if limits.MaxBytes <= 0 {
		out, outMIME, err := encode(img, format)
		if err != nil {
			return nil, "", err
		}
		return out, outMIME, nil
	}

	// Byte constraint: re-encode as JPEG, stepping quality down, then halving
	// dimensions as a last resort.
	quality := initialJPEGQuality
	for {
		out, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, "", err
		}
		if len(out) <= limits.MaxBytes {
			return out, "image/jpeg", nil
		}
		if quality > minJPEGQuality {
			quality -= 10
			continue
		}
		bounds := img.Bounds()
		if bounds.Dx() <= 64 || bounds.Dy() <= 64 {
			return nil, "", fmt.Errorf("image cannot be reduced below %d bytes", limits.MaxBytes)
		}
		img = Downscale(img, maxInt(bounds.Dx(), bounds.Dy())/2)
		quality = initialJPEGQuality
	}
}

// Downscale resizes the image so neither side exceeds maxDim, preserving
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func withinByteLimit(data []byte, limits Limits) bool {
	return limits.MaxBytes <= 0 || len(data) <= limits.MaxBytes
}

func encode(img image.Image, format string) ([]byte, string, error) {
	if format == "png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	out, err := encodeJPEG(img, initialJPEGQuality)
	if err != nil {
		return nil, "", err
	}
	return out, "image/jpeg", nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
