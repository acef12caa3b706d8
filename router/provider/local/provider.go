// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package local implements the free in-process enhancer. It performs a
// histogram-stretch style tone adjustment with no network dependency, so it
// is always available and never consumes credits.
package local

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"pixelflow/platform/router/provider"
	"pixelflow/platform/router/provider/imaging"
)

// Provider is the local (free) backend.
type Provider struct {
	quality int
}

// Config contains configuration for the local provider.
type Config struct {
	// JPEGQuality is the output encoding quality (default 90).
	JPEGQuality int
}

// NewProvider creates the local provider.
func NewProvider(cfg Config) *Provider {
	q := cfg.JPEGQuality
	if q <= 0 || q > 100 {
		q = 90
	}
	return &Provider{quality: q}
}

// ID returns the provider identifier.
func (p *Provider) ID() provider.ID {
	return provider.ProviderLocal
}

// CostClass returns free_local.
func (p *Provider) CostClass() provider.CostClass {
	return provider.CostFreeLocal
}

// Supports consults the capability matrix.
func (p *Provider) Supports(task provider.EditTask) bool {
	return provider.SupportsTask(provider.ProviderLocal, task)
}

// EstimatedProcessingTime scales with image size; local work is fast.
func (p *Provider) EstimatedProcessingTime(task provider.EditTask, imageBytes int) time.Duration {
	est := time.Duration(imageBytes/2_000_000) * 100 * time.Millisecond
	return 50*time.Millisecond + est
}

// ValidateConfiguration always succeeds: there is nothing to configure.
func (p *Provider) ValidateConfiguration(ctx context.Context) error {
	return nil
}

// Edit performs the simple enhancement.
func (p *Provider) Edit(ctx context.Context, req provider.EditRequest) (*provider.EditResult, error) {
	if !p.Supports(req.Task) {
		return nil, provider.NewError(p.ID(), provider.ErrCodeNotSupported, string(req.Task))
	}

	start := time.Now()

	img, _, err := imaging.Decode(req.Image.Data)
	if err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeInvalidInput,
			Message:  "source image could not be decoded",
			Cause:    err,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enhanced := autoContrast(img)
	if req.TargetSize != nil {
		dim := req.TargetSize.Width
		if req.TargetSize.Height > dim {
			dim = req.TargetSize.Height
		}
		enhanced = imaging.Downscale(enhanced, dim)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, enhanced, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeUnknown,
			Message:  "failed to encode result",
			Cause:    err,
		}
	}

	return &provider.EditResult{
		Image:          provider.ImageRef{Data: buf.Bytes(), MIME: "image/jpeg"},
		Provider:       p.ID(),
		CostClass:      p.CostClass(),
		ProcessingTime: time.Since(start),
		Metadata:       map[string]any{"method": "auto_contrast"},
	}, nil
}

// autoContrast stretches the luminance range to the full 0-255 interval.
func autoContrast(src image.Image) image.Image {
	bounds := src.Bounds()

	minL, maxL := 255, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			l := luminance(src.At(x, y))
			if l < minL {
				minL = l
			}
			if l > maxL {
				maxL = l
			}
		}
	}
	if maxL <= minL {
		return src
	}

	scale := 255.0 / float64(maxL-minL)
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{
				R: stretch(uint8(r>>8), minL, scale),
				G: stretch(uint8(g>>8), minL, scale),
				B: stretch(uint8(b>>8), minL, scale),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

func luminance(c color.Color) int {
	r, g, b, _ := c.RGBA()
	// Rec. 601 luma weights.
	return int((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
}

func stretch(v uint8, minL int, scale float64) uint8 {
	out := (float64(v) - float64(minL)) * scale
	if out < 0 {
		return 0
	}
	if out > 255 {
		return 255
	}
	return uint8(out)
}
