package registry

import (
	"context"
	"testing"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
)

// fakeAdapter is a minimal backend.Adapter stub for registry tests; only
// the methods DetectBackends/SwitchBackend actually call need real
// behavior.
type fakeAdapter struct {
	id        backend.ID
	baseURL   string
	available bool
}

func (f *fakeAdapter) ID() backend.ID      { return f.id }
func (f *fakeAdapter) BaseURL() string     { return f.baseURL }
func (f *fakeAdapter) CheckStatus(context.Context) bool { return f.available }
func (f *fakeAdapter) GetVersion(context.Context) backend.VersionInfo {
	return backend.VersionInfo{Version: "1.0", Backend: f.id}
}
func (f *fakeAdapter) Chat(context.Context, backend.ChatRequest, backend.Sink, string) error {
	return nil
}
func (f *fakeAdapter) Complete(context.Context, backend.CompletionRequest, backend.Sink, string) error {
	return nil
}
func (f *fakeAdapter) ListModels(context.Context) []backend.Model { return nil }
func (f *fakeAdapter) GetModelInfo(context.Context, string) (backend.Model, error) {
	return backend.Model{}, nil
}
func (f *fakeAdapter) GenerateEmbeddings(context.Context, backend.EmbeddingsRequest) (backend.EmbeddingsResponse, error) {
	return backend.EmbeddingsResponse{}, nil
}

type fakeStore struct {
	values map[string]any
}

func (s *fakeStore) Set(key string, value any) error {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
	return nil
}

func newTestRegistry() *Registry {
	r := New(nil, nil, nil)
	r.exit = func(int) {} // never actually exit during tests
	return r
}

func TestDetectBackends_RecommendsHighestPriorityAvailable(t *testing.T) {
	r := newTestRegistry()
	r.Register(backend.Native, &fakeAdapter{id: backend.Native, baseURL: "http://n", available: true}, 10)
	r.Register(backend.OpenAICompat, &fakeAdapter{id: backend.OpenAICompat, baseURL: "http://o", available: true}, 20)

	result := r.DetectBackends(context.Background(), false)
	if result.Recommended != backend.Native {
		t.Fatalf("expected Native recommended, got %q", result.Recommended)
	}
	if len(result.Available) != 2 {
		t.Fatalf("expected 2 available, got %d", len(result.Available))
	}
}

func TestDetectBackends_FallsBackToFirstAvailable(t *testing.T) {
	r := newTestRegistry()
	r.Register(backend.Native, &fakeAdapter{id: backend.Native, baseURL: "http://n", available: false}, 10)
	r.Register(backend.OpenAICompat, &fakeAdapter{id: backend.OpenAICompat, baseURL: "http://o", available: true}, 20)

	result := r.DetectBackends(context.Background(), false)
	if result.Recommended != backend.OpenAICompat {
		t.Fatalf("expected OpenAICompat recommended, got %q", result.Recommended)
	}
}

func TestDetectBackends_NoneAvailableLeavesRecommendedEmpty(t *testing.T) {
	r := newTestRegistry()
	r.Register(backend.Native, &fakeAdapter{id: backend.Native, available: false}, 10)

	result := r.DetectBackends(context.Background(), false)
	if result.Recommended != "" {
		t.Fatalf("expected empty recommendation, got %q", result.Recommended)
	}
}

func TestDetectBackends_CachedWithin30s(t *testing.T) {
	r := newTestRegistry()
	calls := 0
	adapter := &fakeAdapter{id: backend.Native, available: true}
	r.Register(backend.Native, adapter, 10)

	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	first := r.DetectBackends(context.Background(), false)
	_ = calls
	fakeNow = fakeNow.Add(10 * time.Second)
	second := r.DetectBackends(context.Background(), false)

	if first.Recommended != second.Recommended {
		t.Fatal("expected identical cached recommendation within 30s window")
	}
}

func TestDetectBackends_ForceRefreshBypassesCache(t *testing.T) {
	r := newTestRegistry()
	adapter := &fakeAdapter{id: backend.Native, available: true}
	r.Register(backend.Native, adapter, 10)

	_ = r.DetectBackends(context.Background(), false)
	adapter.available = false
	result := r.DetectBackends(context.Background(), true)

	if result.Recommended != "" {
		t.Fatalf("expected no recommendation after forced refresh sees unavailable backend, got %q", result.Recommended)
	}
}

func TestSwitchBackend_RejectsUnregistered(t *testing.T) {
	r := newTestRegistry()
	err := r.SwitchBackend(context.Background(), backend.OpenAICompat, SwitchOptions{})
	if err == nil {
		t.Fatal("expected error switching to unregistered backend")
	}
}

func TestSwitchBackend_RequiresAvailabilityUnlessForced(t *testing.T) {
	r := newTestRegistry()
	r.Register(backend.OpenAICompat, &fakeAdapter{id: backend.OpenAICompat, available: false}, 20)

	err := r.SwitchBackend(context.Background(), backend.OpenAICompat, SwitchOptions{ValidateAvailability: true})
	if err == nil {
		t.Fatal("expected error switching to unavailable backend without force")
	}

	if err := r.SwitchBackend(context.Background(), backend.OpenAICompat, SwitchOptions{ValidateAvailability: true, Force: true}); err != nil {
		t.Fatalf("expected forced switch to succeed, got %v", err)
	}
}

func TestSwitchBackend_PersistsToConfigStore(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil, nil)
	r.exit = func(int) {}
	r.Register(backend.Native, &fakeAdapter{id: backend.Native, available: true}, 10)

	if err := r.SwitchBackend(context.Background(), backend.Native, SwitchOptions{}); err != nil {
		t.Fatalf("SwitchBackend: %v", err)
	}
	if store.values["clientType"] != "native" {
		t.Fatalf("expected clientType=native persisted, got %v", store.values["clientType"])
	}
}

func TestCurrent_OverrideTakesPriorityOverRecommendation(t *testing.T) {
	r := newTestRegistry()
	r.Register(backend.Native, &fakeAdapter{id: backend.Native, available: true}, 10)
	r.Register(backend.OpenAICompat, &fakeAdapter{id: backend.OpenAICompat, available: true}, 20)

	if err := r.SwitchBackend(context.Background(), backend.OpenAICompat, SwitchOptions{}); err != nil {
		t.Fatalf("SwitchBackend: %v", err)
	}
	if got := r.Current(context.Background()); got != backend.OpenAICompat {
		t.Fatalf("expected override OpenAICompat, got %q", got)
	}
}
