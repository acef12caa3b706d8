// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package clipdrop implements the Remote-A adapter: the background-removal
// and cleanup specialist. The Clipdrop API takes multipart uploads
// authenticated with an x-api-key header and replies with binary image data.
package clipdrop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"pixelflow/platform/router/provider"
	"pixelflow/platform/router/provider/imaging"
)

const (
	// DefaultBaseURL is the Clipdrop API endpoint.
	DefaultBaseURL = "https://clipdrop-api.co"

	// DefaultTimeout bounds one API call.
	DefaultTimeout = 45 * time.Second

	// Payload ceilings per the vendor contract.
	maxImageBytes = 30 * 1024 * 1024
	maxDimension  = 4096
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements the provider interface for Clipdrop.
type Provider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  HTTPClient
}

// Config contains configuration for the Clipdrop provider.
type Config struct {
	APIKey  string        // Required: Clipdrop API key
	BaseURL string        // Optional: API base URL
	Timeout time.Duration // Optional: HTTP timeout (default 45s)
}

// NewProvider creates a new Clipdrop provider instance.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient overrides the HTTP client. For tests.
func (p *Provider) SetHTTPClient(c HTTPClient) {
	p.client = c
}

// ID returns the provider identifier.
func (p *Provider) ID() provider.ID {
	return provider.ProviderClipdrop
}

// CostClass returns budget.
func (p *Provider) CostClass() provider.CostClass {
	return provider.CostBudget
}

// Supports consults the capability matrix.
func (p *Provider) Supports(task provider.EditTask) bool {
	return provider.SupportsTask(provider.ProviderClipdrop, task)
}

// EstimatedProcessingTime returns the expected duration for the task.
func (p *Provider) EstimatedProcessingTime(task provider.EditTask, imageBytes int) time.Duration {
	base := 3 * time.Second
	if task == provider.TaskCleanup {
		base = 5 * time.Second
	}
	return base + time.Duration(imageBytes/1_000_000)*500*time.Millisecond
}

// ValidateConfiguration fails when the API key is missing.
func (p *Provider) ValidateConfiguration(ctx context.Context) error {
	if p.apiKey == "" {
		return provider.NewError(p.ID(), provider.ErrCodeConfigurationError, "api key not configured")
	}
	return nil
}

// Edit dispatches the edit to the matching Clipdrop endpoint.
func (p *Provider) Edit(ctx context.Context, req provider.EditRequest) (*provider.EditResult, error) {
	if !p.Supports(req.Task) {
		return nil, provider.NewError(p.ID(), provider.ErrCodeNotSupported, string(req.Task))
	}

	start := time.Now()

	data, mime, err := imaging.EnsureWithinLimits(req.Image.Data, req.Image.MIME, imaging.Limits{
		MaxBytes:     maxImageBytes,
		MaxDimension: maxDimension,
	})
	if err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeInvalidInput,
			Message:  "source image rejected by payload limits",
			Cause:    err,
		}
	}

	var endpoint string
	switch req.Task {
	case provider.TaskBgRemove:
		endpoint = "/remove-background/v1"
	case provider.TaskCleanup:
		endpoint = "/cleanup/v1"
	}

	body, contentType, err := p.buildForm(req.Task, data, mime)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, body)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseAPIError(resp)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeDecodeFailed,
			Message:  "failed to read response body",
			Cause:    err,
		}
	}

	outMIME := resp.Header.Get("Content-Type")
	if outMIME == "" {
		outMIME = "image/png"
	}

	return &provider.EditResult{
		Image:          provider.ImageRef{Data: out, MIME: outMIME},
		Provider:       p.ID(),
		CostClass:      p.CostClass(),
		ProcessingTime: time.Since(start),
		Metadata: map[string]any{
			"endpoint":          endpoint,
			"remaining_credits": resp.Header.Get("x-remaining-credits"),
		},
	}, nil
}

// buildForm assembles the multipart request body. The cleanup endpoint
// requires a mask; when the caller supplies none a full-coverage mask is
// synthesized so the whole frame is treated as candidate area.
func (p *Provider) buildForm(task provider.EditTask, data []byte, mime string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image_file", fileName(mime))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	if task == provider.TaskCleanup {
		mask, err := fullMask(data)
		if err != nil {
			return nil, "", err
		}
		maskPart, err := w.CreateFormFile("mask_file", "mask.png")
		if err != nil {
			return nil, "", err
		}
		if _, err := maskPart.Write(mask); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func fileName(mime string) string {
	if mime == "image/png" {
		return "image.png"
	}
	return "image.jpg"
}

// fullMask renders an all-white PNG mask matching the source dimensions.
func fullMask(imageData []byte) ([]byte, error) {
	img, _, err := imaging.Decode(imageData)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	mask := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, mask); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseAPIError maps a Clipdrop error response to the shared taxonomy.
func (p *Provider) parseAPIError(resp *http.Response) *provider.Error {
	body, _ := io.ReadAll(resp.Body)

	message := string(body)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	code := provider.CodeFromHTTPStatus(resp.StatusCode)
	if resp.StatusCode == http.StatusForbidden {
		// Clipdrop signals exhausted plan credits with 403.
		code = provider.ErrCodeQuotaExceeded
	}

	return &provider.Error{
		Provider:   p.ID(),
		Code:       code,
		Message:    fmt.Sprintf("clipdrop: %s", message),
		StatusCode: resp.StatusCode,
		RetryAfter: provider.ParseRetryAfter(resp),
	}
}
