// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"strings"

	"pixelflow/platform/router/provider"
)

// Outcome is the three-way result of routing one edit request.
type Outcome string

const (
	// OutcomeRouted means a provider produced (or the cache held) a result.
	OutcomeRouted Outcome = "routed"

	// OutcomeRequiresUpgrade means the request is valid but the user's
	// credits or tier cannot cover it. An expected business state, not an
	// error.
	OutcomeRequiresUpgrade Outcome = "requires_upgrade"

	// OutcomeFailed means every candidate provider was exhausted.
	OutcomeFailed Outcome = "failed"
)

// UpgradeReason tells the UI which upgrade path to render.
type UpgradeReason string

const (
	// ReasonInsufficientBudgetCredits: the month's budget credits are gone.
	ReasonInsufficientBudgetCredits UpgradeReason = "insufficient_budget_credits"

	// ReasonInsufficientPremiumCredits: the month's premium credits are gone.
	ReasonInsufficientPremiumCredits UpgradeReason = "insufficient_premium_credits"

	// ReasonPremiumFeatureRequired: the task is only possible on a premium
	// provider and the user's tier carries no premium allowance at all.
	ReasonPremiumFeatureRequired UpgradeReason = "premium_feature_required"

	// ReasonTierLimitReached: every affordable class for the task is
	// exhausted for this tier.
	ReasonTierLimitReached UpgradeReason = "tier_limit_reached"
)

// UpgradeInfo carries the structured detail behind a requires_upgrade
// decision so the UI can render exact numbers.
type UpgradeInfo struct {
	Reason    UpgradeReason      `json:"reason"`
	CostClass provider.CostClass `json:"cost_class"`
	Required  int                `json:"required"`
	Remaining int                `json:"remaining"`
}

// Attempt records one terminal provider failure for diagnostics.
type Attempt struct {
	Provider provider.ID        `json:"provider"`
	Code     provider.ErrorCode `json:"code"`
	Message  string             `json:"message"`
	Retries  int                `json:"retries"`
}

// FailureInfo aggregates which providers were tried and why each failed.
type FailureInfo struct {
	Attempts []Attempt `json:"attempts"`
}

// Error renders the aggregate for logs and support diagnosis.
func (f *FailureInfo) Error() string {
	if len(f.Attempts) == 0 {
		return "no capable provider available"
	}
	parts := make([]string, len(f.Attempts))
	for i, a := range f.Attempts {
		parts[i] = fmt.Sprintf("%s: %s (%s)", a.Provider, a.Code, a.Message)
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// RoutingDecision is the engine's answer to one edit request. Exactly one
// of Result, Upgrade, or Failure is populated, per Outcome.
type RoutingDecision struct {
	Outcome  Outcome              `json:"outcome"`
	Provider provider.ID          `json:"provider,omitempty"`
	Result   *provider.EditResult `json:"result,omitempty"`
	Cached   bool                 `json:"cached,omitempty"`
	Upgrade  *UpgradeInfo         `json:"upgrade,omitempty"`
	Failure  *FailureInfo         `json:"failure,omitempty"`
}

// Routed builds a success decision.
func Routed(id provider.ID, result *provider.EditResult, cached bool) *RoutingDecision {
	return &RoutingDecision{Outcome: OutcomeRouted, Provider: id, Result: result, Cached: cached}
}

// RequiresUpgrade builds an upgrade decision.
func RequiresUpgrade(info UpgradeInfo) *RoutingDecision {
	return &RoutingDecision{Outcome: OutcomeRequiresUpgrade, Upgrade: &info}
}

// Failed builds a failure decision.
func Failed(info *FailureInfo) *RoutingDecision {
	return &RoutingDecision{Outcome: OutcomeFailed, Failure: info}
}
