package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/registry"
	"github.com/meshnode/meshnode/internal/resolver"
)

// fakeAdapter implements backend.Adapter with hooks the tests can swap in,
// mirroring internal/proxy/proxy_test.go's fake.
type fakeAdapter struct {
	id       backend.ID
	chatFunc func(ctx context.Context, req backend.ChatRequest, sink backend.Sink, pathname string) error
	models   []backend.Model
}

func (f *fakeAdapter) ID() backend.ID  { return f.id }
func (f *fakeAdapter) BaseURL() string { return "http://fake" }
func (f *fakeAdapter) Chat(ctx context.Context, req backend.ChatRequest, sink backend.Sink, pathname string) error {
	if f.chatFunc != nil {
		return f.chatFunc(ctx, req, sink, pathname)
	}
	if err := sink.Write([]byte(`{"model":"llama3.2:latest","response":"hi","done":true}`)); err != nil {
		return err
	}
	return sink.Close()
}
func (f *fakeAdapter) Complete(ctx context.Context, req backend.CompletionRequest, sink backend.Sink, pathname string) error {
	return f.Chat(ctx, backend.ChatRequest{Raw: req.Raw, Stream: req.Stream}, sink, pathname)
}
func (f *fakeAdapter) CheckStatus(ctx context.Context) bool { return true }
func (f *fakeAdapter) ListModels(ctx context.Context) []backend.Model {
	return f.models
}
func (f *fakeAdapter) GetModelInfo(ctx context.Context, name string) (backend.Model, error) {
	for _, mod := range f.models {
		if mod.Name == name {
			return mod, nil
		}
	}
	return backend.Model{}, backend.ErrModelNotFound
}
func (f *fakeAdapter) GenerateEmbeddings(ctx context.Context, req backend.EmbeddingsRequest) (backend.EmbeddingsResponse, error) {
	out := backend.EmbeddingsResponse{Model: req.Model, Data: make([]backend.Embedding, len(req.Input))}
	for i := range req.Input {
		out.Data[i] = backend.Embedding{Index: i, Embedding: []float64{float64(i)}}
	}
	return out, nil
}
func (f *fakeAdapter) GetVersion(ctx context.Context) backend.VersionInfo {
	return backend.VersionInfo{Version: "0.1.0", Backend: f.id}
}

var _ backend.Adapter = (*fakeAdapter)(nil)

func newTestModule(adapter backend.Adapter) *Module {
	reg := registry.New(nil, nil, nil)
	reg.Register(adapter.ID(), adapter, 10)
	res := resolver.New(reg.Adapter, nil)
	eng := proxy.New(reg, res, nil, nil)

	m := &Module{}
	m.config.defaults()
	m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m.engine = eng
	m.reg = reg
	return m
}

func TestHandleNativeChat_StreamsNDJSON(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"model":"llama3.2:latest","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected ndjson content-type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"done":true`) {
		t.Fatalf("expected done frame in body, got %q", rec.Body.String())
	}
}

func TestHandleOpenAIChatCompletions_UsesSSEHeaders(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(`{"model":"llama3.2:latest","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content-type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "data: [DONE]") {
		t.Fatalf("expected SSE terminator, got %q", rec.Body.String())
	}
}

func TestHandleNativeChat_ValidationFailureReturnsError(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation failure, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleNativeTags_ListsModels(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native, models: []backend.Model{{Name: "llama3.2:latest"}}}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var parsed nativeTagsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Models) != 1 || parsed.Models[0].Name != "llama3.2:latest" {
		t.Fatalf("unexpected models: %+v", parsed.Models)
	}
}

func TestHandleOpenAIModels_ListsModels(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native, models: []backend.Model{{Name: "llama3.2:latest"}}}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"id":"llama3.2:latest"`) {
		t.Fatalf("expected model entry, got %q", rec.Body.String())
	}
}

func TestHandleHealthz_OKWhenBackendAvailable(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBackendStatus_UnknownBackendReturns404(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodGet, "/api/backends/openai_compat/status", nil)
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleBackendSwitch_UnregisteredBackendFails(t *testing.T) {
	adapter := &fakeAdapter{id: backend.Native}
	m := newTestModule(adapter)

	req := httptest.NewRequest(http.MethodPost, "/api/backends/openai_compat/switch", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	m.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
