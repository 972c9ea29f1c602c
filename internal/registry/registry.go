// Package registry implements the Backend Registry & Router (spec.md
// §4.5 / C5): it tracks which adapters are registered, probes their
// availability, and owns the single "current backend" override.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/security"
)

// detectCacheTTL matches spec.md §4.5 "Results are cached 30 s."
const detectCacheTTL = 30 * time.Second

// selfRestartGrace matches spec.md §4.5 "the host process exits with code
// 0 after a 1 s grace".
const selfRestartGrace = 1 * time.Second

// ConfigStore is the minimal durable persistence contract the Registry
// needs for switchBackend's "clientType" key (spec.md §4.5, §6). Concrete
// implementation lives in internal/configstore; this interface avoids a
// direct dependency so the registry package can be tested in isolation.
type ConfigStore interface {
	Set(key string, value any) error
}

// Entry is one registered adapter and its routing metadata (spec.md §4.5:
// "Maintains a mapping from backend identifier to {adapter, priority,
// enabled, registeredAt}").
type Entry struct {
	Adapter      backend.Adapter
	Priority     int
	Enabled      bool
	RegisteredAt time.Time
}

// HealthStatus is the per-backend probe result (spec.md §4.2 "Health
// status").
type HealthStatus struct {
	IsAvailable  bool
	URL          string
	Version      string
	Error        string
	LastChecked  time.Time
	ResponseTime time.Duration
}

// DetectResult is detectBackends' return shape (spec.md §4.5).
type DetectResult struct {
	Available   []backend.ID
	Unavailable []backend.ID
	Details     map[backend.ID]HealthStatus
	Recommended backend.ID // zero value if none available
}

// SwitchOptions configures switchBackend (spec.md §4.5).
type SwitchOptions struct {
	Force                bool
	ValidateAvailability bool
	PersistRestart       bool // if true, trigger the self-restart sequence on success
}

// Registry is the mutex-guarded map of backend entries plus the current
// override and detection cache (spec.md §3 "Registry map: mutable; guarded
// by a mutex; only the map itself, not the adapters behind it, is
// protected").
type Registry struct {
	mu         sync.Mutex
	entries    map[backend.ID]*Entry
	override   backend.ID
	envDefault backend.ID

	cache   *DetectResult
	cacheAt time.Time

	store   ConfigStore
	metrics *metrics.Registry
	audit   *security.AuditLogger
	logger  *slog.Logger
	now     func() time.Time

	// exit is os.Exit by default; overridable for tests.
	exit func(code int)
}

// New constructs an empty Registry. logger/store/reg may be nil.
func New(store ConfigStore, reg *metrics.Registry, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[backend.ID]*Entry),
		store:   store,
		metrics: reg,
		logger:  logger,
		now:     time.Now,
		exit:    os.Exit,
	}
}

// Register adds or replaces the entry for id (spec.md §4.5 "External
// registrations allowed").
func (r *Registry) Register(id backend.ID, adapter backend.Adapter, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &Entry{
		Adapter:      adapter,
		Priority:     priority,
		Enabled:      true,
		RegisteredAt: r.now(),
	}
}

// SetAuditLogger attaches the audit trail SwitchBackend records
// backend_switch events to (SPEC_FULL.md §7). Nil disables recording.
func (r *Registry) SetAuditLogger(audit *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = audit
}

// SetEnvDefault records the environment-derived default backend (spec.md
// §4.5 tier (b), populated from MODEL_INFERENCE_FRAMEWORK at startup). It
// is consulted by Current only when no runtime override is set.
func (r *Registry) SetEnvDefault(id backend.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envDefault = id
}

// SetEnabled toggles an entry's participation in detection/routing
// without removing its registration.
func (r *Registry) SetEnabled(id backend.ID, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.Enabled = enabled
	}
}

func (r *Registry) snapshotEntries() []struct {
	id backend.ID
	e  Entry
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct {
		id backend.ID
		e  Entry
	}, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, struct {
			id backend.ID
			e  Entry
		}{id, *e})
	}
	return out
}

// DetectBackends probes every enabled adapter in parallel and returns the
// aggregate availability view (spec.md §4.5 "detectBackends()"). Cached
// for 30s unless forceRefresh is set.
func (r *Registry) DetectBackends(ctx context.Context, forceRefresh bool) DetectResult {
	r.mu.Lock()
	if !forceRefresh && r.cache != nil && r.now().Sub(r.cacheAt) < detectCacheTTL {
		cached := *r.cache
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	entries := r.snapshotEntries()

	var wg sync.WaitGroup
	details := make(map[backend.ID]HealthStatus, len(entries))
	var detailsMu sync.Mutex

	for _, row := range entries {
		if !row.e.Enabled {
			continue
		}
		wg.Add(1)
		go func(id backend.ID, e Entry) {
			defer wg.Done()
			start := r.now()
			status := HealthStatus{URL: e.Adapter.BaseURL(), LastChecked: start}
			if e.Adapter.CheckStatus(ctx) {
				status.IsAvailable = true
				status.Version = e.Adapter.GetVersion(ctx).Version
			} else {
				status.Error = "health probe failed"
			}
			status.ResponseTime = r.now().Sub(start)
			detailsMu.Lock()
			details[id] = status
			detailsMu.Unlock()
		}(row.id, row.e)
	}
	wg.Wait()

	var available, unavailable []backend.ID
	for id, st := range details {
		if st.IsAvailable {
			available = append(available, id)
		} else {
			unavailable = append(unavailable, id)
		}
	}

	result := DetectResult{
		Available:   available,
		Unavailable: unavailable,
		Details:     details,
		Recommended: r.recommend(entries, details),
	}

	r.mu.Lock()
	r.cache = &result
	r.cacheAt = r.now()
	r.mu.Unlock()

	return result
}

// recommend picks the highest-priority available backend, falling back
// to the first available one (spec.md §4.5 "recommended = highest-
// priority available, falling back to first available, falling back to
// undefined"). Lower Priority value means more preferred, matching
// "Native at priority 10 (preferred), OpenAI-Compat at priority 20".
func (r *Registry) recommend(entries []struct {
	id backend.ID
	e  Entry
}, details map[backend.ID]HealthStatus) backend.ID {
	sort.Slice(entries, func(i, j int) bool { return entries[i].e.Priority < entries[j].e.Priority })
	for _, row := range entries {
		if st, ok := details[row.id]; ok && st.IsAvailable {
			return row.id
		}
	}
	return ""
}

// Current implements spec.md §4.5's current-backend priority order: (a)
// the runtime override set by a switch call, (b) the environment-derived
// default (MODEL_INFERENCE_FRAMEWORK), (c) the detection cache's
// recommendation, falling back to the hardcoded Native preference. It
// never returns the zero backend.ID.
func (r *Registry) Current(ctx context.Context) backend.ID {
	r.mu.Lock()
	override := r.override
	envDefault := r.envDefault
	r.mu.Unlock()
	if override != "" {
		return override
	}
	if envDefault != "" {
		return envDefault
	}
	if recommended := r.DetectBackends(ctx, false).Recommended; recommended != "" {
		return recommended
	}
	return backend.Native
}

// Adapter returns the adapter registered for id, or nil if unregistered.
func (r *Registry) Adapter(id backend.ID) backend.Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return e.Adapter
}

// SwitchBackend validates and applies a runtime override (spec.md §4.5
// "switchBackend(target, opts)").
func (r *Registry) SwitchBackend(ctx context.Context, target backend.ID, opts SwitchOptions) error {
	r.mu.Lock()
	entry, registered := r.entries[target]
	r.mu.Unlock()
	if !registered {
		return fmt.Errorf("registry: backend %q is not registered", target)
	}

	if opts.ValidateAvailability && !opts.Force {
		result := r.DetectBackends(ctx, false)
		available := false
		for _, id := range result.Available {
			if id == target {
				available = true
				break
			}
		}
		if !available {
			return fmt.Errorf("registry: backend %q is not currently available", target)
		}
	}

	r.mu.Lock()
	r.override = target
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Set("clientType", string(target)); err != nil {
			return fmt.Errorf("registry: persist clientType: %w", err)
		}
	}
	if r.metrics != nil {
		r.metrics.BackendSwitches.WithLabelValues(string(target)).Inc()
	}
	if r.audit != nil {
		r.audit.Log(security.AuditEvent{Type: security.EventBackendSwitch, BackendID: string(target)})
	}
	r.logger.Info("backend switched", "target", target, "priority", entry.Priority)

	if opts.PersistRestart {
		r.selfRestart()
	}
	return nil
}

// selfRestart implements spec.md §4.5 "Self-restart on switch": the host
// exits 0 after a 1 s grace so an external supervisor can relaunch it with
// the newly persisted config.
func (r *Registry) selfRestart() {
	r.logger.Info("exiting for self-restart after backend switch", "grace", selfRestartGrace)
	go func() {
		time.Sleep(selfRestartGrace)
		r.exit(0)
	}()
}
