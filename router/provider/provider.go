// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"time"
)

// Provider is the unified interface for all image-edit backends.
// Implementations must be safe for concurrent use.
type Provider interface {
	// ID returns the stable identifier for this backend.
	ID() ID

	// CostClass returns the monetary tier charged per edit.
	CostClass() CostClass

	// Supports reports whether the backend can perform the task.
	Supports(task EditTask) bool

	// EstimatedProcessingTime returns an expected duration for the task
	// given the source image size in bytes. Used for UI hints only, never
	// for routing correctness.
	EstimatedProcessingTime(task EditTask, imageBytes int) time.Duration

	// Edit performs the edit. Failures are *Error values classified per
	// the shared taxonomy. The context bounds the call; adapters must
	// honor cancellation.
	Edit(ctx context.Context, req EditRequest) (*EditResult, error)

	// ValidateConfiguration fails if credentials or configuration are
	// missing, or if the backend rejects a connectivity probe.
	ValidateConfiguration(ctx context.Context) error
}

// Capabilities describes the design-level capability matrix: which backend
// supports which task. Adapters consult this table so task-support stays in
// one place.
var Capabilities = map[ID]map[EditTask]bool{
	ProviderLocal: {
		TaskSimpleEnhance: true,
	},
	ProviderClipdrop: {
		TaskBgRemove: true,
		TaskCleanup:  true,
	},
	ProviderStability: {
		TaskSimpleEnhance:   true,
		TaskCleanup:         true,
		TaskRestyle:         true,
		TaskLocalObjectEdit: true,
	},
	ProviderOpenAI: {
		TaskSimpleEnhance:   true,
		TaskCleanup:         true,
		TaskRestyle:         true,
		TaskLocalObjectEdit: true,
	},
	ProviderGemini: {
		TaskSimpleEnhance:      true,
		TaskBgRemove:           true,
		TaskRestyle:            true,
		TaskLocalObjectEdit:    true,
		TaskSubjectConsistency: true,
		TaskMultiImageFusion:   true,
	},
}

// TaskPreference is the fixed, documented tie-break order among backends for
// each task. Within one cost class, candidates keep this relative order; a
// stable sort by cost-class weight is applied on top. The table lists the
// specialist first where one exists (clipdrop for background removal).
var TaskPreference = map[EditTask][]ID{
	TaskSimpleEnhance:      {ProviderLocal, ProviderStability, ProviderOpenAI, ProviderGemini},
	TaskBgRemove:           {ProviderClipdrop, ProviderGemini},
	TaskCleanup:            {ProviderClipdrop, ProviderStability, ProviderOpenAI},
	TaskRestyle:            {ProviderStability, ProviderOpenAI, ProviderGemini},
	TaskLocalObjectEdit:    {ProviderStability, ProviderOpenAI, ProviderGemini},
	TaskSubjectConsistency: {ProviderGemini},
	TaskMultiImageFusion:   {ProviderGemini},
}

// SupportsTask consults the capability matrix.
func SupportsTask(p ID, task EditTask) bool {
	return Capabilities[p][task]
}
