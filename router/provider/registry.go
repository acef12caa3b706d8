// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultValidationRecheck is how long a validation verdict (pass or fail)
// is trusted before the provider is probed again.
const DefaultValidationRecheck = 5 * time.Minute

// Registry manages provider instances and tracks their configuration health.
// It is thread-safe for concurrent access.
//
// A provider whose ValidateConfiguration fails is excluded from candidacy
// for the current and subsequent requests until a later recheck succeeds.
type Registry struct {
	providers map[ID]Provider
	order     []ID
	logger    *log.Logger
	recheck   time.Duration
	mu        sync.RWMutex

	validation map[ID]*validationState
	valMu      sync.Mutex
}

type validationState struct {
	err       error
	checkedAt time.Time
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a custom logger.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithValidationRecheck overrides the validation cache interval.
func WithValidationRecheck(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.recheck = d
	}
}

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:  make(map[ID]Provider),
		validation: make(map[ID]*validationState),
		recheck:    DefaultValidationRecheck,
		logger:     log.New(os.Stdout, "[PROVIDER_REGISTRY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider. Registering the same ID twice is an error.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID()]; exists {
		return fmt.Errorf("provider %q already registered", p.ID())
	}
	r.providers[p.ID()] = p
	r.order = append(r.order, p.ID())
	r.logger.Printf("Registered provider %s (cost class: %s)", p.ID(), p.CostClass())
	return nil
}

// Get returns a provider by ID.
func (r *Registry) Get(id ID) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// List returns all registered provider IDs in registration order.
func (r *Registry) List() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Configured reports whether the provider currently passes configuration
// validation. Verdicts are cached for the recheck interval so a missing API
// key does not trigger a probe on every request.
func (r *Registry) Configured(ctx context.Context, id ID) bool {
	p, ok := r.Get(id)
	if !ok {
		return false
	}

	r.valMu.Lock()
	state, exists := r.validation[id]
	if exists && time.Since(state.checkedAt) < r.recheck {
		err := state.err
		r.valMu.Unlock()
		return err == nil
	}
	r.valMu.Unlock()

	err := p.ValidateConfiguration(ctx)

	r.valMu.Lock()
	r.validation[id] = &validationState{err: err, checkedAt: time.Now()}
	r.valMu.Unlock()

	if err != nil {
		r.logger.Printf("Provider %s failed configuration validation: %v", id, err)
	}
	return err == nil
}

// Invalidate drops the cached validation verdict for a provider, forcing a
// fresh probe on next use. Call after rotating credentials.
func (r *Registry) Invalidate(id ID) {
	r.valMu.Lock()
	delete(r.validation, id)
	r.valMu.Unlock()
}

// Status describes a provider's registry state for diagnostics.
type Status struct {
	ID         ID        `json:"id"`
	CostClass  CostClass `json:"cost_class"`
	Configured bool      `json:"configured"`
	Tasks      []EditTask `json:"tasks"`
	LastError  string    `json:"last_error,omitempty"`
	CheckedAt  time.Time `json:"checked_at,omitempty"`
}

// StatusAll reports the state of every registered provider.
func (r *Registry) StatusAll(ctx context.Context) []Status {
	ids := r.List()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		p, _ := r.Get(id)
		st := Status{ID: id, CostClass: p.CostClass(), Configured: r.Configured(ctx, id)}
		for _, task := range AllTasks {
			if p.Supports(task) {
				st.Tasks = append(st.Tasks, task)
			}
		}
		r.valMu.Lock()
		if v, ok := r.validation[id]; ok {
			st.CheckedAt = v.checkedAt
			if v.err != nil {
				st.LastError = v.err.Error()
			}
		}
		r.valMu.Unlock()
		out = append(out, st)
	}
	return out
}
