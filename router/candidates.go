// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"sort"

	"pixelflow/platform/router/provider"
)

// candidates selects and orders the providers worth trying for a request.
//
// Filtering drops providers that do not support the task or whose
// configuration check fails. Ordering starts from the per-task preference
// table and is then stable-sorted by cost class weight, cheapest first.
// At best quality the sort flips so the strongest capable provider leads;
// the preference table still breaks ties within a class.
func (e *Engine) candidates(ctx context.Context, req provider.EditRequest) []provider.Provider {
	prefs, ok := provider.TaskPreference[req.Task]
	if !ok {
		return nil
	}

	list := make([]provider.Provider, 0, len(prefs))
	for _, id := range prefs {
		p, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		if !p.Supports(req.Task) {
			continue
		}
		// A failing configuration check removes the provider from
		// candidacy until its credentials are corrected, even when it
		// is the only one that supports the task.
		if !e.registry.Configured(ctx, id) {
			continue
		}
		list = append(list, p)
	}

	best := req.EffectiveQuality() == provider.QualityBest
	sort.SliceStable(list, func(i, j int) bool {
		wi, wj := list[i].CostClass().Weight(), list[j].CostClass().Weight()
		if best {
			return wi > wj
		}
		return wi < wj
	})

	return list
}
