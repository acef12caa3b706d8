// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelflow_router_decisions_total",
			Help: "Total routing decisions by outcome",
		},
		[]string{"outcome"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelflow_router_provider_calls_total",
			Help: "Total provider edit calls by provider and status",
		},
		[]string{"provider", "status"},
	)
	promProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelflow_router_provider_duration_milliseconds",
			Help:    "Provider edit duration in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	promCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelflow_router_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"},
	)
	promCreditsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelflow_router_credits_consumed_total",
			Help: "Credits committed to the usage ledger by tier and cost class",
		},
		[]string{"tier", "cost_class"},
	)
	promUpgradePrompts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelflow_router_upgrade_prompts_total",
			Help: "Requires-upgrade decisions by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promDecisionsTotal)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promProviderDuration)
	prometheus.MustRegister(promCacheLookups)
	prometheus.MustRegister(promCreditsConsumed)
	prometheus.MustRegister(promUpgradePrompts)
}
