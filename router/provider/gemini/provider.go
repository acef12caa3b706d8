// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package gemini implements the Remote-D adapter: the complex and
// multi-image editor backed by Google's Gemini image generation models.
// Requests are JSON generateContent calls with inline base64 image parts;
// multi-image tasks send one part per source image.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pixelflow/platform/router/provider"
	"pixelflow/platform/router/provider/imaging"
)

const (
	// DefaultBaseURL is the Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the Gemini API version.
	DefaultAPIVersion = "v1beta"

	// DefaultModel is the image-capable model.
	DefaultModel = "gemini-2.5-flash-image"

	// DefaultTimeout bounds one API call.
	DefaultTimeout = 60 * time.Second

	// Payload ceilings per the vendor contract. Inline data is base64, so
	// the byte ceiling stays well under the request size limit.
	maxImageBytes = 7 * 1024 * 1024
	maxDimension  = 3072
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements the provider interface for Gemini.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	timeout    time.Duration
	client     HTTPClient
}

// Config contains configuration for the Gemini provider.
type Config struct {
	APIKey     string        // Required: Google API key
	BaseURL    string        // Optional: API base URL
	APIVersion string        // Optional: API version (default v1beta)
	Model      string        // Optional: model (default gemini-2.5-flash-image)
	Timeout    time.Duration // Optional: HTTP timeout (default 60s)
}

// NewProvider creates a new Gemini provider instance.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient overrides the HTTP client. For tests.
func (p *Provider) SetHTTPClient(c HTTPClient) {
	p.client = c
}

// ID returns the provider identifier.
func (p *Provider) ID() provider.ID {
	return provider.ProviderGemini
}

// CostClass returns premium.
func (p *Provider) CostClass() provider.CostClass {
	return provider.CostPremium
}

// Supports consults the capability matrix.
func (p *Provider) Supports(task provider.EditTask) bool {
	return provider.SupportsTask(provider.ProviderGemini, task)
}

// EstimatedProcessingTime returns the expected duration for the task.
func (p *Provider) EstimatedProcessingTime(task provider.EditTask, imageBytes int) time.Duration {
	base := 8 * time.Second
	if task.Complexity() == provider.ComplexityAdvanced {
		base = 15 * time.Second
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

// taskInstruction returns the instruction text sent ahead of the image
// parts. The user prompt is appended where present.
func taskInstruction(req provider.EditRequest) string {
	base := map[provider.EditTask]string{
		provider.TaskSimpleEnhance:      "Enhance this photo: improve exposure, contrast and sharpness while keeping it natural.",
		provider.TaskBgRemove:           "Remove the background from this photo, keeping only the main subject on a transparent background.",
		provider.TaskRestyle:            "Rerender this photo in a new artistic style.",
		provider.TaskLocalObjectEdit:    "Edit only the described region of this photo, leaving everything else untouched.",
		provider.TaskSubjectConsistency: "Generate a new scene preserving the exact identity and appearance of the pictured subject.",
		provider.TaskMultiImageFusion:   "Combine these images into one coherent photo.",
	}[req.Task]
	if req.Prompt == "" {
		return base
	}
	return base + " " + req.Prompt
}

// Edit dispatches the edit via generateContent.
func (p *Provider) Edit(ctx context.Context, req provider.EditRequest) (*provider.EditResult, error) {
	if !p.Supports(req.Task) {
		return nil, provider.NewError(p.ID(), provider.ErrCodeNotSupported, string(req.Task))
	}

	start := time.Now()

	parts := []apiPart{{Text: taskInstruction(req)}}

	images := append([]provider.ImageRef{req.Image}, req.ExtraImages...)
	for _, img := range images {
		data, mime, err := imaging.EnsureWithinLimits(img.Data, img.MIME, imaging.Limits{
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
		parts = append(parts, apiPart{
			InlineData: &apiInlineData{
				MIMEType: mime,
				Data:     base64.StdEncoding.EncodeToString(data),
			},
		})
	}

	apiReq := apiRequest{
		Contents: []apiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &apiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, p.apiVersion, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, provider.WrapError(p.ID(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeDecodeFailed,
			Message:  "failed to decode response",
			Cause:    err,
		}
	}

	imgPart := apiResp.firstImagePart()
	if imgPart == nil {
		return nil, provider.NewError(p.ID(), provider.ErrCodeDecodeFailed, "response contained no image part")
	}

	out, err := base64.StdEncoding.DecodeString(imgPart.Data)
	if err != nil {
		return nil, &provider.Error{
			Provider: p.ID(),
			Code:     provider.ErrCodeDecodeFailed,
			Message:  "invalid base64 image data",
			Cause:    err,
		}
	}

	mime := imgPart.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	return &provider.EditResult{
		Image:          provider.ImageRef{Data: out, MIME: mime},
		Provider:       p.ID(),
		CostClass:      p.CostClass(),
		ProcessingTime: time.Since(start),
		Metadata: map[string]any{
			"model":        p.model,
			"source_parts": len(images),
		},
	}, nil
}

// parseAPIError maps a Gemini error response to the shared taxonomy.
func (p *Provider) parseAPIError(resp *http.Response) *provider.Error {
	body, _ := io.ReadAll(resp.Body)

	message := string(body)
	status := ""
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		status = errResp.Error.Status
	}

	code := provider.CodeFromHTTPStatus(resp.StatusCode)
	if status == "RESOURCE_EXHAUSTED" {
		code = provider.ErrCodeRateLimited
	}

	return &provider.Error{
		Provider:   p.ID(),
		Code:       code,
		Message:    fmt.Sprintf("gemini: %s", message),
		StatusCode: resp.StatusCode,
		RetryAfter: provider.ParseRetryAfter(resp),
	}
}

// Internal API types.

type apiRequest struct {
	Contents         []apiContent         `json:"contents"`
	GenerationConfig *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inline_data,omitempty"`
}

type apiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type apiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type apiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []apiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (r *apiResponse) firstImagePart() *apiInlineData {
	for _, c := range r.Candidates {
		for _, part := range c.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return part.InlineData
			}
		}
	}
	return nil
}
