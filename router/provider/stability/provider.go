// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package stability implements the Remote-B adapter: the fast creative
// editor backed by the Stability AI v2beta stable-image endpoints. Requests
// are multipart with Bearer auth; responses are binary image data.
package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"pixelflow/platform/router/provider"
	"pixelflow/platform/router/provider/imaging"
)

const (
	// DefaultBaseURL is the Stability API endpoint.
	DefaultBaseURL = "https://api.stability.ai"

	// DefaultTimeout bounds one API call.
	DefaultTimeout = 60 * time.Second

	// Payload ceilings per the vendor contract.
	maxImageBytes = 10 * 1024 * 1024
	maxDimension  = 2048
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements the provider interface for Stability AI.
type Provider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  HTTPClient
}

// Config contains configuration for the Stability provider.
type Config struct {
	APIKey  string        // Required: Stability API key
	BaseURL string        // Optional: API base URL
	Timeout time.Duration // Optional: HTTP timeout (default 60s)
}

// NewProvider creates a new Stability provider instance.
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
	return provider.ProviderStability
}

// CostClass returns budget.
func (p *Provider) CostClass() provider.CostClass {
	return provider.CostBudget
}

// Supports consults the capability matrix.
func (p *Provider) Supports(task provider.EditTask) bool {
	return provider.SupportsTask(provider.ProviderStability, task)
}

// EstimatedProcessingTime returns the expected duration for the task.
func (p *Provider) EstimatedProcessingTime(task provider.EditTask, imageBytes int) time.Duration {
	base := 4 * time.Second
	if task.Complexity() >= provider.ComplexityComplex {
		base = 8 * time.Second
	}
	return base + time.Duration(imageBytes/1_000_000)*time.Second
}

// ValidateConfiguration fails when the API key is missing.
func (p *Provider) ValidateConfiguration(ctx context.Context) error {
	if p.apiKey == "" {
		return provider.NewError(p.ID(), provider.ErrCodeConfigurationError, "api key not configured")
	}
	return nil
}

// endpointFor maps a task to its stable-image endpoint.
func endpointFor(task provider.EditTask) string {
	switch task {
	case provider.TaskSimpleEnhance:
		return "/v2beta/stable-image/upscale/fast"
	case provider.TaskCleanup:
		return "/v2beta/stable-image/edit/erase"
	case provider.TaskRestyle:
		return "/v2beta/stable-image/control/style"
	case provider.TaskLocalObjectEdit:
		return "/v2beta/stable-image/edit/search-and-replace"
	}
	return ""
}

// Edit dispatches the edit to the matching stable-image endpoint.
func (p *Provider) Edit(ctx context.Context, req provider.EditRequest) (*provider.EditResult, error) {
	endpoint := endpointFor(req.Task)
	if endpoint == "" {
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

	body, contentType, err := p.buildForm(req, data, mime)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, body)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "image/*")

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
			"endpoint":      endpoint,
			"finish_reason": resp.Header.Get("finish-reason"),
		},
	}, nil
}

// buildForm assembles the multipart body. Prompt-bearing tasks carry the
// user prompt in the vendor's expected field.
func (p *Provider) buildForm(req provider.EditRequest, data []byte, mime string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", fileName(mime))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	switch req.Task {
	case provider.TaskRestyle:
		if err := w.WriteField("prompt", req.Prompt); err != nil {
			return nil, "", err
		}
	case provider.TaskLocalObjectEdit:
		if err := w.WriteField("prompt", req.Prompt); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("search_prompt", req.Prompt); err != nil {
			return nil, "", err
		}
	}

	if req.TargetSize != nil {
		if err := w.WriteField("output_format", "png"); err != nil {
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

// parseAPIError maps a Stability error response to the shared taxonomy.
func (p *Provider) parseAPIError(resp *http.Response) *provider.Error {
	body, _ := io.ReadAll(resp.Body)

	message := string(body)
	var errResp struct {
		Name   string   `json:"name"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Errors) > 0 {
		message = errResp.Errors[0]
	}

	return &provider.Error{
		Provider:   p.ID(),
		Code:       provider.CodeFromHTTPStatus(resp.StatusCode),
		Message:    fmt.Sprintf("stability: %s", message),
		StatusCode: resp.StatusCode,
		RetryAfter: provider.ParseRetryAfter(resp),
	}
}
