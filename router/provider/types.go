// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package provider defines the common abstractions shared by all image-edit
// backends in PixelFlow: the task and cost-class enumerations, the unified
// request/result types, the error taxonomy, and the Provider interface that
// every backend adapter implements.
package provider

import (
	"fmt"
	"time"
)

// EditTask identifies the kind of edit the user asked for.
type EditTask string

// Supported edit tasks.
const (
	// TaskSimpleEnhance is a global tone/contrast/sharpness touch-up.
	TaskSimpleEnhance EditTask = "simple_enhance"

	// TaskBgRemove removes the image background, leaving the subject.
	TaskBgRemove EditTask = "bg_remove"

	// TaskCleanup erases unwanted objects or blemishes.
	TaskCleanup EditTask = "cleanup"

	// TaskRestyle re-renders the image in a different artistic style.
	TaskRestyle EditTask = "restyle"

	// TaskLocalObjectEdit modifies a specific region described by the prompt.
	TaskLocalObjectEdit EditTask = "local_object_edit"

	// TaskSubjectConsistency regenerates a scene while preserving the
	// identity of the pictured subject.
	TaskSubjectConsistency EditTask = "subject_consistency"

	// TaskMultiImageFusion composes several source images into one result.
	TaskMultiImageFusion EditTask = "multi_image_fusion"
)

// AllTasks lists every supported edit task.
var AllTasks = []EditTask{
	TaskSimpleEnhance,
	TaskBgRemove,
	TaskCleanup,
	TaskRestyle,
	TaskLocalObjectEdit,
	TaskSubjectConsistency,
	TaskMultiImageFusion,
}

// IsValidTask checks if a string is a known edit task.
func IsValidTask(s string) bool {
	for _, t := range AllTasks {
		if EditTask(s) == t {
			return true
		}
	}
	return false
}

// Complexity ranks how demanding a task is. Used as a routing heuristic.
type Complexity int

const (
	ComplexitySimple Complexity = iota
	ComplexityModerate
	ComplexityComplex
	ComplexityAdvanced
)

// String returns the human-readable complexity name.
func (c Complexity) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	case ComplexityAdvanced:
		return "advanced"
	}
	return fmt.Sprintf("complexity(%d)", int(c))
}

// Complexity returns the complexity rank for the task.
func (t EditTask) Complexity() Complexity {
	switch t {
	case TaskSimpleEnhance:
		return ComplexitySimple
	case TaskBgRemove, TaskCleanup:
		return ComplexityModerate
	case TaskRestyle, TaskLocalObjectEdit:
		return ComplexityComplex
	case TaskSubjectConsistency, TaskMultiImageFusion:
		return ComplexityAdvanced
	}
	return ComplexitySimple
}

// CostClass is the monetary tier associated with invoking a provider.
type CostClass string

const (
	// CostFreeLocal is on-device work that never consumes credits.
	CostFreeLocal CostClass = "free_local"

	// CostBudget consumes one budget credit per edit.
	CostBudget CostClass = "budget"

	// CostPremium consumes one premium credit per edit.
	CostPremium CostClass = "premium"
)

// Weight returns the ordering weight of the cost class. Classes are totally
// ordered by weight: free_local < budget < premium.
func (c CostClass) Weight() int {
	switch c {
	case CostFreeLocal:
		return 0
	case CostBudget:
		return 1
	case CostPremium:
		return 5
	}
	return 0
}

// ID is the stable identifier of a backend. IDs are immutable and are never
// reused for a different backend.
type ID string

// The five backends.
const (
	// ProviderLocal runs simple enhancement in-process. Free, always available.
	ProviderLocal ID = "local"

	// ProviderClipdrop is the background-removal and cleanup specialist.
	ProviderClipdrop ID = "clipdrop"

	// ProviderStability is the fast creative editor.
	ProviderStability ID = "stability"

	// ProviderOpenAI is the general-purpose image editor.
	ProviderOpenAI ID = "openai"

	// ProviderGemini handles complex and multi-image edits.
	ProviderGemini ID = "gemini"
)

// Tier is the user's subscription tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// IsValidTier checks if a string is a known subscription tier.
func IsValidTier(s string) bool {
	return Tier(s) == TierFree || Tier(s) == TierPro
}

// Quality is the caller's quality hint. QualityBest asks the engine to prefer
// the most capable (highest cost class) provider instead of the cheapest.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityBest     Quality = "best"
)

// ImageRef carries image content plus its encoding.
type ImageRef struct {
	// Data is the encoded image bytes.
	Data []byte `json:"data"`

	// MIME is the content type, e.g. "image/jpeg" or "image/png".
	MIME string `json:"mime"`
}

// Size is a pixel dimension pair.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EditRequest encapsulates one edit request. It is immutable once created;
// one request produces exactly one routing decision.
type EditRequest struct {
	// UserID is the opaque identifier supplied by the identity layer.
	UserID string `json:"user_id"`

	// Tier is the requesting user's subscription tier.
	Tier Tier `json:"tier"`

	// Task is the requested edit intent.
	Task EditTask `json:"task"`

	// Prompt is the free-text edit instruction.
	Prompt string `json:"prompt,omitempty"`

	// Image is the primary source image.
	Image ImageRef `json:"image"`

	// ExtraImages holds additional source images for multi-image tasks
	// (fusion, subject consistency references).
	ExtraImages []ImageRef `json:"extra_images,omitempty"`

	// Quality is the quality hint. Empty means QualityStandard.
	Quality Quality `json:"quality,omitempty"`

	// TargetSize optionally constrains the output dimensions.
	TargetSize *Size `json:"target_size,omitempty"`
}

// EffectiveQuality returns the quality hint with the default applied.
func (r EditRequest) EffectiveQuality() Quality {
	if r.Quality == QualityBest {
		return QualityBest
	}
	return QualityStandard
}

// Validate checks the request for fields the engine cannot work without.
func (r EditRequest) Validate() error {
	if r.UserID == "" {
		return NewError("", ErrCodeInvalidInput, "user id is required")
	}
	if !IsValidTask(string(r.Task)) {
		return NewError("", ErrCodeInvalidInput, fmt.Sprintf("unknown task %q", r.Task))
	}
	if !IsValidTier(string(r.Tier)) {
		return NewError("", ErrCodeInvalidInput, fmt.Sprintf("unknown tier %q", r.Tier))
	}
	if len(r.Image.Data) == 0 {
		return NewError("", ErrCodeInvalidInput, "image data is required")
	}
	if r.Task == TaskMultiImageFusion && len(r.ExtraImages) == 0 {
		return NewError("", ErrCodeInvalidInput, "multi_image_fusion requires at least one extra image")
	}
	return nil
}

// EditResult is the output of one successful provider dispatch.
type EditResult struct {
	// Image is the edited output image.
	Image ImageRef `json:"image"`

	// Provider is the backend that produced the result.
	Provider ID `json:"provider"`

	// CostClass is the class that was (or would be) charged for the edit.
	CostClass CostClass `json:"cost_class"`

	// ProcessingTime is how long the backend took.
	ProcessingTime time.Duration `json:"processing_time"`

	// Metadata contains backend-specific response details.
	Metadata map[string]any `json:"metadata,omitempty"`
}
