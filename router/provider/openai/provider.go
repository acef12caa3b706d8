// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package openai implements the Remote-C adapter: the general-purpose image
// editor backed by the OpenAI images API. Requests are multipart uploads to
// /v1/images/edits with Bearer auth; responses carry base64 image data.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
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
	// DefaultBaseURL is the OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel is the image edit model.
	DefaultModel = "gpt-image-1"

	// DefaultTimeout bounds one API call.
	DefaultTimeout = 60 * time.Second

	// Payload ceilings per the vendor contract.
	maxImageBytes = 25 * 1024 * 1024
	maxDimension  = 2048
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements the provider interface for the OpenAI images API.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  HTTPClient
}

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string        // Required: OpenAI API key
	BaseURL string        // Optional: API base URL
	Model   string        // Optional: edit model (default gpt-image-1)
	Timeout time.Duration // Optional: HTTP timeout (default 60s)
}

// NewProvider creates a new OpenAI provider instance.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
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
	return provider.ProviderOpenAI
}

// CostClass returns premium.
func (p *Provider) CostClass() provider.CostClass {
	return provider.CostPremium
}

// Supports consults the capability matrix.
func (p *Provider) Supports(task provider.EditTask) bool {
	return provider.SupportsTask(provider.ProviderOpenAI, task)
}

// EstimatedProcessingTime returns the expected duration for the task.
func (p *Provider) EstimatedProcessingTime(task provider.EditTask, imageBytes int) time.Duration {
	return 10*time.Second + time.Duration(imageBytes/1_000_000)*time.Second
}

// ValidateConfiguration fails when the API key is missing.
func (p *Provider) ValidateConfiguration(ctx context.Context) error {
	if p.apiKey == "" {
		return provider.NewError(p.ID(), provider.ErrCodeConfigurationError, "api key not configured")
	}
	return nil
}

// Edit dispatches the edit to /v1/images/edits.
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

	body, contentType, err := p.buildForm(req, data, mime)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/images/edits", body)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var apiResp editsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeDecodeFailed,
			Message:  "failed to decode response",
			Cause:    err,
		}
	}
	if len(apiResp.Data) == 0 || apiResp.Data[0].B64JSON == "" {
		return nil, provider.NewError(p.ID(), provider.ErrCodeDecodeFailed, "response contained no image data")
	}

	out, err := base64.StdEncoding.DecodeString(apiResp.Data[0].B64JSON)
	if err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeDecodeFailed,
			Message:  "invalid base64 image data",
			Cause:    err,
		}
	}

	return &provider.EditResult{
		Image:          provider.ImageRef{Data: out, MIME: "image/png"},
		Provider:       p.ID(),
		CostClass:      p.CostClass(),
		ProcessingTime: time.Since(start),
		Metadata: map[string]any{
			"model": p.model,
			"usage": apiResp.Usage,
		},
	}, nil
}

// promptFor builds the edit instruction. Vendor-neutral task phrasing with
// the user prompt appended where present.
func promptFor(req provider.EditRequest) string {
	base := map[provider.EditTask]string{
		provider.TaskSimpleEnhance:   "Enhance this photo: improve exposure, contrast and sharpness while keeping it natural.",
		provider.TaskCleanup:         "Remove unwanted objects and blemishes from this photo.",
		provider.TaskRestyle:         "Rerender this photo in a new style.",
		provider.TaskLocalObjectEdit: "Edit the described region of this photo.",
	}[req.Task]
	if req.Prompt == "" {
		return base
	}
	return base + " " + req.Prompt
}

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

	if err := w.WriteField("model", p.model); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("prompt", promptFor(req)); err != nil {
		return nil, "", err
	}
	if req.TargetSize != nil {
		size := fmt.Sprintf("%dx%d", req.TargetSize.Width, req.TargetSize.Height)
		if err := w.WriteField("size", size); err != nil {
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

// parseAPIError maps an OpenAI error response to the shared taxonomy.
func (p *Provider) parseAPIError(resp *http.Response) *provider.Error {
	body, _ := io.ReadAll(resp.Body)

	message := string(body)
	errType := ""
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		errType = errResp.Error.Type
	}

	code := provider.CodeFromHTTPStatus(resp.StatusCode)
	if errType == "insufficient_quota" {
		code = provider.ErrCodeQuotaExceeded
	}

	return &provider.Error{
		Provider:   p.ID(),
		Code:       code,
		Message:    fmt.Sprintf("openai: %s", message),
		StatusCode: resp.StatusCode,
		RetryAfter: provider.ParseRetryAfter(resp),
	}
}

// Internal API types.

type editsResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Usage map[string]any `json:"usage,omitempty"`
}
