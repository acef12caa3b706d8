// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package router decides where each photo edit request runs. It weighs the
// task against provider capabilities, the user's remaining monthly credits,
// and cached prior results, then dispatches with retries and cost-aware
// fallback.
package router

import (
	"context"
	"errors"
	"time"

	"pixelflow/platform/router/cache"
	"pixelflow/platform/router/ledger"
	"pixelflow/platform/router/provider"
	"pixelflow/platform/shared/logger"
)

// DefaultProviderTimeout bounds one provider edit call, retries excluded.
const DefaultProviderTimeout = 45 * time.Second

// Engine is the routing orchestrator. Construct with NewEngine; the zero
// value is not usable.
type Engine struct {
	registry *provider.Registry
	tracker  ledger.UsageTracker
	cache    cache.ResultCache
	log      *logger.Logger
	retry    RetryConfig

	timeouts       map[provider.ID]time.Duration
	defaultTimeout time.Duration
}

// EngineOption configures the engine during creation.
type EngineOption func(*Engine)

// WithCache attaches a result cache. Without one every request dispatches.
func WithCache(c cache.ResultCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithRetryConfig overrides the per-provider retry budget.
func WithRetryConfig(cfg RetryConfig) EngineOption {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// WithProviderTimeout sets the edit-call timeout for one provider.
func WithProviderTimeout(id provider.ID, d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeouts[id] = d
	}
}

// WithDefaultTimeout sets the edit-call timeout for providers without an
// explicit override.
func WithDefaultTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.defaultTimeout = d
	}
}

// WithEngineLogger sets a custom logger.
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates a routing engine over the given providers and ledger.
func NewEngine(registry *provider.Registry, tracker ledger.UsageTracker, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:       registry,
		tracker:        tracker,
		log:            logger.New("routing-engine"),
		retry:          DefaultRetryConfig(),
		timeouts:       make(map[provider.ID]time.Duration),
		defaultTimeout: DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Route resolves one edit request to a routing decision.
//
// The pipeline: validate, consult the cache, pick capable candidates in
// cost order, drop the ones the user cannot afford, then dispatch down the
// list with retries until one succeeds. Credits are committed only after a
// successful edit, and a request whose caller has gone away is discarded
// before commit so the user is never charged for a result nobody receives.
func (e *Engine) Route(ctx context.Context, requestID string, req provider.EditRequest) (*RoutingDecision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if dec := e.lookupCache(ctx, requestID, req); dec != nil {
		promDecisionsTotal.WithLabelValues(string(OutcomeRouted)).Inc()
		return dec, nil
	}

	cands := e.candidates(ctx, req)
	if len(cands) == 0 {
		promDecisionsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return Failed(&FailureInfo{}), nil
	}

	affordable, upgrade, err := e.affordable(ctx, req, cands)
	if err != nil {
		return nil, err
	}
	if upgrade != nil {
		promDecisionsTotal.WithLabelValues(string(OutcomeRequiresUpgrade)).Inc()
		promUpgradePrompts.WithLabelValues(string(upgrade.Reason)).Inc()
		e.log.Info(req.UserID, requestID, "Request requires upgrade", map[string]interface{}{
			"task":   string(req.Task),
			"reason": string(upgrade.Reason),
		})
		return RequiresUpgrade(*upgrade), nil
	}

	failure := &FailureInfo{}
	for _, p := range affordable {
		result, retries, editErr := e.dispatch(ctx, p, req)
		if editErr != nil {
			if errors.Is(editErr, context.Canceled) {
				return nil, editErr
			}
			failure.Attempts = append(failure.Attempts, attemptFor(p.ID(), editErr, retries))
			e.log.Warn(req.UserID, requestID, "Provider edit failed", map[string]interface{}{
				"provider": string(p.ID()),
				"retries":  retries,
				"error":    editErr.Error(),
			})
			continue
		}

		// The caller is gone. Drop the result before committing credits.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err := e.commit(ctx, requestID, req, p); err != nil {
			return nil, err
		}
		e.storeCache(ctx, requestID, req, result)

		promDecisionsTotal.WithLabelValues(string(OutcomeRouted)).Inc()
		e.log.InfoWithDuration(req.UserID, requestID, "Request routed",
			float64(result.ProcessingTime.Milliseconds()), map[string]interface{}{
				"provider":   string(p.ID()),
				"task":       string(req.Task),
				"cost_class": string(p.CostClass()),
				"retries":    retries,
			})
		return Routed(p.ID(), result, false), nil
	}

	promDecisionsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	return Failed(failure), nil
}

// dispatch runs one provider with its timeout and the retry budget.
func (e *Engine) dispatch(ctx context.Context, p provider.Provider, req provider.EditRequest) (*provider.EditResult, int, error) {
	timeout := e.defaultTimeout
	if d, ok := e.timeouts[p.ID()]; ok {
		timeout = d
	}

	start := time.Now()
	result, retries, err := retryEdit(ctx, e.retry, func(ctx context.Context) (*provider.EditResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.Edit(callCtx, req)
	})
	elapsed := time.Since(start)

	promProviderDuration.WithLabelValues(string(p.ID())).Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		promProviderCalls.WithLabelValues(string(p.ID()), "error").Inc()
		return nil, retries, err
	}
	promProviderCalls.WithLabelValues(string(p.ID()), "success").Inc()
	if result.ProcessingTime == 0 {
		result.ProcessingTime = elapsed
	}
	return result, retries, nil
}

// affordable filters candidates down to the ones the user's remaining
// credits can cover. When nothing survives it returns the upgrade prompt
// that explains why.
func (e *Engine) affordable(ctx context.Context, req provider.EditRequest, cands []provider.Provider) ([]provider.Provider, *UpgradeInfo, error) {
	var (
		out            []provider.Provider
		budgetPresent  bool
		premiumPresent bool
	)
	remainingByClass := make(map[provider.CostClass]int)

	for _, p := range cands {
		class := p.CostClass()
		if class == provider.CostFreeLocal {
			out = append(out, p)
			continue
		}

		switch class {
		case provider.CostBudget:
			budgetPresent = true
		case provider.CostPremium:
			premiumPresent = true
		}

		remaining, err := e.tracker.Remaining(ctx, req.UserID, req.Tier, class)
		if err != nil {
			return nil, nil, err
		}
		remainingByClass[class] = remaining
		if remaining > 0 {
			out = append(out, p)
		}
	}

	if len(out) > 0 {
		return out, nil, nil
	}

	info := &UpgradeInfo{Required: 1}
	switch {
	case premiumPresent && !budgetPresent:
		info.CostClass = provider.CostPremium
		// A tier with no premium allowance at all lacks the feature;
		// every current tier has one, so running dry is reported as an
		// exhausted balance.
		if ledger.Capacity(req.Tier, provider.CostPremium) == 0 {
			info.Reason = ReasonPremiumFeatureRequired
		} else {
			info.Reason = ReasonInsufficientPremiumCredits
		}
	case budgetPresent && !premiumPresent:
		info.CostClass = provider.CostBudget
		info.Reason = ReasonInsufficientBudgetCredits
	default:
		info.CostClass = provider.CostBudget
		info.Reason = ReasonTierLimitReached
	}
	info.Remaining = remainingByClass[info.CostClass]
	return nil, info, nil
}

// commit spends the credit for a completed edit. A lost race against a
// concurrent spender is logged and forgiven: the work is done and the
// counter cannot exceed capacity either way.
func (e *Engine) commit(ctx context.Context, requestID string, req provider.EditRequest, p provider.Provider) error {
	class := p.CostClass()
	ok, err := e.tracker.Consume(ctx, req.UserID, req.Tier, class)
	if err != nil {
		return err
	}
	if !ok {
		e.log.Warn(req.UserID, requestID, "Credit commit lost a concurrent race", map[string]interface{}{
			"provider":   string(p.ID()),
			"cost_class": string(class),
		})
		return nil
	}
	if class != provider.CostFreeLocal {
		promCreditsConsumed.WithLabelValues(string(req.Tier), string(class)).Inc()
	}
	return nil
}

func (e *Engine) lookupCache(ctx context.Context, requestID string, req provider.EditRequest) *RoutingDecision {
	if e.cache == nil {
		return nil
	}
	key := cache.KeyFor(req)
	result, ok, err := e.cache.Lookup(ctx, key)
	if err != nil {
		// A broken cache degrades to a dispatch, never to a failure.
		e.log.Warn(req.UserID, requestID, "Cache lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		promCacheLookups.WithLabelValues("error").Inc()
		return nil
	}
	if !ok {
		promCacheLookups.WithLabelValues("miss").Inc()
		return nil
	}
	promCacheLookups.WithLabelValues("hit").Inc()
	e.log.Debug(req.UserID, requestID, "Cache hit", map[string]interface{}{
		"task": string(req.Task),
	})
	return Routed(result.Provider, result, true)
}

func (e *Engine) storeCache(ctx context.Context, requestID string, req provider.EditRequest, result *provider.EditResult) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Store(ctx, cache.KeyFor(req), result); err != nil {
		e.log.Warn(req.UserID, requestID, "Cache store failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func attemptFor(id provider.ID, err error, retries int) Attempt {
	a := Attempt{Provider: id, Retries: retries, Code: provider.ErrCodeUnknown, Message: err.Error()}
	var perr *provider.Error
	if errors.As(err, &perr) {
		a.Code = perr.Code
		a.Message = perr.Message
	} else if errors.Is(err, context.DeadlineExceeded) {
		a.Code = provider.ErrCodeServiceUnavailable
		a.Message = "provider call timed out"
	}
	return a
}
