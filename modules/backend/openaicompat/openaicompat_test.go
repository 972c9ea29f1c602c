package openaicompat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/httpclient"
)

type memSink struct {
	chunks [][]byte
	closed bool
}

func (s *memSink) Write(chunk []byte) error {
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func newAdapter(baseURL, apiKey string) *Adapter {
	a := &Adapter{config: Config{BaseURL: baseURL, APIKey: apiKey}}
	a.config.defaults()
	a.http = httpclient.New(httpclient.Timeouts{}, "meshnode-openai-compat-test")
	return a
}

func TestAdapter_CheckStatus_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, "sk-test-key")
	if !a.CheckStatus(context.Background()) {
		t.Fatal("expected CheckStatus true")
	}
	if gotAuth != "Bearer sk-test-key" {
		t.Fatalf("Authorization = %q, want Bearer sk-test-key", gotAuth)
	}
}

func TestAdapter_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[{"id":"mistral-7b","object":"model"}]}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, "")
	models := a.ListModels(context.Background())
	if len(models) != 1 || models[0].Name != "mistral-7b" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestAdapter_Chat_StreamingAppendsTerminator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, "")
	sink := &memSink{}
	req := backend.ChatRequest{Model: "mistral-7b", Stream: true, Raw: []byte(`{"model":"mistral-7b","stream":true}`)}
	if err := a.Chat(context.Background(), req, sink, "/v1/chat/completions"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.closed {
		t.Fatal("expected sink closed")
	}
	last := string(sink.chunks[len(sink.chunks)-1])
	if !strings.Contains(last, "[DONE]") {
		t.Fatalf("expected terminator chunk, got %q", last)
	}
}

func TestAdapter_GetModelInfo_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	a := newAdapter(srv.URL, "")
	_, err := a.GetModelInfo(context.Background(), "no-such-model")
	if err != backend.ErrModelNotFound {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}
