// Package resolver implements the Dynamic Model Resolver (spec.md §4.6 /
// C6): per-backend model-list and default-model caches with a 5-minute
// TTL, and a never-fails getEffectiveModel substitution used by the
// Streaming Proxy just before dispatch.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
)

// cacheTTL matches spec.md §4.6 "each with a 5-minute TTL".
const cacheTTL = 5 * time.Minute

// fallbackDefault matches spec.md §4.6 "a backend-specific fallback
// (llama3.2:latest for native, a generic placeholder otherwise)".
const (
	nativeFallback = "llama3.2:latest"
	genericFallback = "default"
)

type cacheEntry struct {
	models       []backend.Model
	defaultModel string
	fetchedAt    time.Time
}

// Resolver holds the live caches for every registered backend.
type Resolver struct {
	mu      sync.Mutex
	caches  map[backend.ID]*cacheEntry
	adapter func(backend.ID) backend.Adapter // looks up the current adapter, e.g. registry.Adapter

	now    func() time.Time
	logger *slog.Logger
}

// New constructs a Resolver. adapterLookup resolves a backend.ID to its
// live adapter (typically registry.Registry.Adapter); logger may be nil.
func New(adapterLookup func(backend.ID) backend.Adapter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		caches:  make(map[backend.ID]*cacheEntry),
		adapter: adapterLookup,
		now:     time.Now,
		logger:  logger,
	}
}

func (r *Resolver) fallbackFor(id backend.ID) string {
	if id == backend.Native {
		return nativeFallback
	}
	return genericFallback
}

// ensureFresh reloads the cache for id if stale or absent, listing models
// from the live adapter. listModels failures are tolerated: an empty
// inventory simply yields the fallback default (spec.md §4.6).
func (r *Resolver) ensureFresh(ctx context.Context, id backend.ID) *cacheEntry {
	r.mu.Lock()
	entry, ok := r.caches[id]
	if ok && r.now().Sub(entry.fetchedAt) < cacheTTL {
		r.mu.Unlock()
		return entry
	}
	r.mu.Unlock()

	var models []backend.Model
	if a := r.adapter(id); a != nil {
		models = a.ListModels(ctx)
	}

	def := r.fallbackFor(id)
	if len(models) > 0 {
		def = models[0].Name
	}

	fresh := &cacheEntry{models: models, defaultModel: def, fetchedAt: r.now()}
	r.mu.Lock()
	r.caches[id] = fresh
	r.mu.Unlock()
	return fresh
}

// GetDefaultModel implements spec.md §4.6 "getDefaultModel(backend)".
func (r *Resolver) GetDefaultModel(ctx context.Context, id backend.ID) string {
	return r.ensureFresh(ctx, id).defaultModel
}

// GetEffectiveModel implements spec.md §4.6 "getEffectiveModel(requested)":
// never fails, and any probe failure passes the requested model through
// unchanged so the backend's own error surfaces as-is.
func (r *Resolver) GetEffectiveModel(ctx context.Context, id backend.ID, requested string) string {
	if requested == "" {
		return r.GetDefaultModel(ctx, id)
	}

	entry := r.ensureFresh(ctx, id)
	for _, m := range entry.models {
		if m.Name == requested {
			return requested
		}
	}

	r.logger.Warn("requested model not found, substituting default",
		"backend", id, "requested", requested, "substituted", entry.defaultModel)
	return entry.defaultModel
}

// Refresh implements spec.md §4.6 "refresh(backend)": clears both caches
// for that backend and forces the next call to reload.
func (r *Resolver) Refresh(id backend.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, id)
}
