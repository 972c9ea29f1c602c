package native

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/httpclient"
)

type memSink struct {
	chunks [][]byte
	closed bool
}

func (s *memSink) Write(chunk []byte) error {
	cp := append([]byte(nil), chunk...)
	s.chunks = append(s.chunks, cp)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func newAdapter(baseURL string) *Adapter {
	a := &Adapter{config: Config{BaseURL: baseURL}}
	a.config.defaults()
	a.http = httpclient.New(httpclient.Timeouts{}, "meshnode-native-test")
	return a
}

func TestAdapter_CheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"version":"0.1.0"}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	if !a.CheckStatus(context.Background()) {
		t.Fatal("expected CheckStatus true")
	}
}

func TestAdapter_CheckStatus_Down(t *testing.T) {
	a := newAdapter("http://127.0.0.1:1")
	if a.CheckStatus(context.Background()) {
		t.Fatal("expected CheckStatus false for unreachable backend")
	}
}

func TestAdapter_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest","size":123,"details":{"family":"llama"}}]}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	models := a.ListModels(context.Background())
	if len(models) != 1 || models[0].Name != "llama3.2:latest" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestAdapter_ListModels_FailureReturnsEmpty(t *testing.T) {
	a := newAdapter("http://127.0.0.1:1")
	models := a.ListModels(context.Background())
	if models != nil {
		t.Fatalf("expected nil on failure, got %+v", models)
	}
}

func TestAdapter_GetVersion_FailureReturnsUnknown(t *testing.T) {
	a := newAdapter("http://127.0.0.1:1")
	v := a.GetVersion(context.Background())
	if v.Version != "unknown" || v.Backend != backend.Native {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestAdapter_Chat_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"model":"llama3.2:latest","done":true,"eval_count":5}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	sink := &memSink{}
	req := backend.ChatRequest{Model: "llama3.2:latest", Raw: []byte(`{"model":"llama3.2:latest","messages":[]}`)}
	if err := a.Chat(context.Background(), req, sink, "/api/chat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.closed {
		t.Fatal("expected sink closed")
	}
	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(sink.chunks))
	}
}

func TestAdapter_Chat_OpenAIPathReroutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	sink := &memSink{}
	req := backend.ChatRequest{Model: "llama3.2:latest", Raw: []byte(`{}`)}
	if err := a.Chat(context.Background(), req, sink, "/v1/chat/completions"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_GenerateEmbeddings_PreservesOrder(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen = append(seen, body.Prompt)
		w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	resp, err := a.GenerateEmbeddings(context.Background(), backend.EmbeddingsRequest{
		Model: "llama3.2:latest",
		Input: []string{"first", "second", "third"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(resp.Data))
	}
	for i, d := range resp.Data {
		if d.Index != i {
			t.Errorf("data[%d].Index = %d, want %d", i, d.Index, i)
		}
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("call order[%d] = %q, want %q", i, seen[i], w)
		}
	}
}
