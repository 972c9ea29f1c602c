package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/meshnode/meshnode/internal/backend"
)

type stubAdapter struct {
	backend.Adapter // embed nil; only ListModels is exercised
	id              backend.ID
	models          []backend.Model
	listCalls       int
}

func (s *stubAdapter) ListModels(context.Context) []backend.Model {
	s.listCalls++
	return s.models
}

func TestGetDefaultModel_UsesFirstListedModel(t *testing.T) {
	adapter := &stubAdapter{id: backend.Native, models: []backend.Model{{Name: "llama3"}, {Name: "mistral"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)

	got := r.GetDefaultModel(context.Background(), backend.Native)
	if got != "llama3" {
		t.Fatalf("expected llama3, got %q", got)
	}
}

func TestGetDefaultModel_FallsBackWhenEmpty(t *testing.T) {
	native := &stubAdapter{id: backend.Native}
	r := New(func(backend.ID) backend.Adapter { return native }, nil)
	if got := r.GetDefaultModel(context.Background(), backend.Native); got != nativeFallback {
		t.Fatalf("expected native fallback %q, got %q", nativeFallback, got)
	}

	oc := &stubAdapter{id: backend.OpenAICompat}
	r2 := New(func(backend.ID) backend.Adapter { return oc }, nil)
	if got := r2.GetDefaultModel(context.Background(), backend.OpenAICompat); got != genericFallback {
		t.Fatalf("expected generic fallback %q, got %q", genericFallback, got)
	}
}

func TestGetEffectiveModel_EmptyRequestUsesDefault(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)
	if got := r.GetEffectiveModel(context.Background(), backend.Native, ""); got != "llama3" {
		t.Fatalf("expected llama3, got %q", got)
	}
}

func TestGetEffectiveModel_KnownModelPassesThrough(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}, {Name: "mistral"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)
	if got := r.GetEffectiveModel(context.Background(), backend.Native, "mistral"); got != "mistral" {
		t.Fatalf("expected mistral, got %q", got)
	}
}

func TestGetEffectiveModel_UnknownModelSubstitutesDefault(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)
	if got := r.GetEffectiveModel(context.Background(), backend.Native, "does-not-exist"); got != "llama3" {
		t.Fatalf("expected substitution to llama3, got %q", got)
	}
}

func TestEnsureFresh_CachesWithinTTL(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)

	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	r.GetDefaultModel(context.Background(), backend.Native)
	fakeNow = fakeNow.Add(time.Minute)
	r.GetDefaultModel(context.Background(), backend.Native)

	if adapter.listCalls != 1 {
		t.Fatalf("expected 1 ListModels call within TTL, got %d", adapter.listCalls)
	}
}

func TestEnsureFresh_RefreshesAfterTTL(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)

	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	r.GetDefaultModel(context.Background(), backend.Native)
	fakeNow = fakeNow.Add(6 * time.Minute)
	r.GetDefaultModel(context.Background(), backend.Native)

	if adapter.listCalls != 2 {
		t.Fatalf("expected 2 ListModels calls after TTL expiry, got %d", adapter.listCalls)
	}
}

func TestRefresh_ForcesReload(t *testing.T) {
	adapter := &stubAdapter{models: []backend.Model{{Name: "llama3"}}}
	r := New(func(backend.ID) backend.Adapter { return adapter }, nil)

	r.GetDefaultModel(context.Background(), backend.Native)
	r.Refresh(backend.Native)
	r.GetDefaultModel(context.Background(), backend.Native)

	if adapter.listCalls != 2 {
		t.Fatalf("expected 2 ListModels calls after Refresh, got %d", adapter.listCalls)
	}
}

func TestGetDefaultModel_NilAdapterUsesFallback(t *testing.T) {
	r := New(func(backend.ID) backend.Adapter { return nil }, nil)
	if got := r.GetDefaultModel(context.Background(), backend.Native); got != nativeFallback {
		t.Fatalf("expected fallback with nil adapter, got %q", got)
	}
}
