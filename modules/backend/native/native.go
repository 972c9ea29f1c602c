// Package native implements the Ollama-style native backend adapter
// (spec.md §4.3 "Native adapter specifics").
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/httpclient"
	"github.com/meshnode/meshnode/internal/wire"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Adapter{})
}

// Adapter is the native backend adapter. It also implements core.Module so
// the runtime can configure/provision it like any other module and so it
// can register itself for discovery by the registry (C5).
type Adapter struct {
	config Config
	http   *httpclient.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Adapter) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "backend.native",
		New: func() core.Module { return &Adapter{} },
	}
}

// Configure implements core.Configurable.
func (a *Adapter) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (a *Adapter) Provision(ctx *core.AppContext) error {
	if a.config.BaseURL == "" {
		a.config.defaults()
	}
	a.logger = ctx.Logger
	a.http = httpclient.New(httpclient.Timeouts{Request: a.config.Timeout, MaxRetries: a.config.MaxRetries}, "meshnode-native/1.0")
	ctx.RegisterService(backend.Native.ServiceName(), backend.Adapter(a))
	return nil
}

// Validate implements core.Validator.
func (a *Adapter) Validate() error {
	return a.config.validate()
}

// ID implements backend.Adapter.
func (a *Adapter) ID() backend.ID { return backend.Native }

// BaseURL implements backend.Adapter.
func (a *Adapter) BaseURL() string { return a.config.BaseURL }

// Chat implements backend.Adapter.
func (a *Adapter) Chat(ctx context.Context, req backend.ChatRequest, sink backend.Sink, pathname string) error {
	endpoint := a.config.BaseURL + "/api/chat"
	if wire.IsOpenAIPath(pathname) {
		endpoint = a.config.BaseURL + "/v1/chat/completions"
	}
	return a.dispatch(ctx, endpoint, req.Raw, req.Stream, sink)
}

// Complete implements backend.Adapter.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, sink backend.Sink, pathname string) error {
	endpoint := a.config.BaseURL + "/api/generate"
	if wire.IsOpenAIPath(pathname) {
		endpoint = a.config.BaseURL + "/v1/completions"
	}
	return a.dispatch(ctx, endpoint, req.Raw, req.Stream, sink)
}

// dispatch performs the common body-passthrough request/stream-copy logic
// shared by Chat and Complete: the body is forwarded unchanged (per spec.md
// "pass body through unchanged" for the OpenAI reroute case; the native
// case forwards the already-rewritten request body from C7 verbatim too).
func (a *Adapter) dispatch(ctx context.Context, endpoint string, body json.RawMessage, stream bool, sink backend.Sink) error {
	if stream {
		resp, err := a.http.OpenStream(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
		}
		defer resp.Body.Close()
		if !httpclient.Success(resp.StatusCode) {
			return readUpstreamError(resp)
		}
		return copyStream(ctx, resp.Body, sink)
	}

	resp, err := a.http.Do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		return readUpstreamError(resp)
	}
	full, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := sink.Write(full); err != nil {
		return err
	}
	return sink.Close()
}

// copyStream copies every chunk from upstream to sink verbatim in arrival
// order (spec.md §4.7.b: "Copy every chunk to the sink. Do not transform
// frames unless §4.7.F applies" — format normalization is C7's job, not
// the adapter's).
func copyStream(ctx context.Context, body io.Reader, sink backend.Sink) error {
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := body.Read(buf)
		if n > 0 {
			// Empty chunks are forwarded as-is elsewhere; a zero-byte Read
			// here simply means nothing to write this iteration.
			if werr := sink.Write(append([]byte(nil), buf[:n]...)); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return sink.Close()
		}
		if err != nil {
			return err
		}
	}
}

const maxErrorBodySize = 4096

func readUpstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &backend.UpstreamError{Status: resp.StatusCode, Body: body}
}

// CheckStatus implements backend.Adapter.
func (a *Adapter) CheckStatus(ctx context.Context) bool {
	resp, err := a.http.Do(ctx, http.MethodGet, a.config.BaseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return httpclient.Success(resp.StatusCode)
}

// ListModels implements backend.Adapter.
func (a *Adapter) ListModels(ctx context.Context) []backend.Model {
	resp, err := a.http.Do(ctx, http.MethodGet, a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		return nil
	}
	var parsed wire.NativeModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil
	}
	out := make([]backend.Model, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		entry := backend.Model{
			Name:       m.Name,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
			Digest:     m.Digest,
		}
		if m.Details != nil {
			entry.Family = m.Details.Family
			entry.Parameters = m.Details.ParameterSize
		}
		out = append(out, entry)
	}
	return out
}

// GetModelInfo implements backend.Adapter.
func (a *Adapter) GetModelInfo(ctx context.Context, name string) (backend.Model, error) {
	lookup := strings.ToLower(strings.TrimSpace(name))
	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := a.http.Do(ctx, http.MethodPost, a.config.BaseURL+"/api/show", body)
	if err != nil {
		return backend.Model{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		for _, m := range a.ListModels(ctx) {
			if strings.ToLower(m.Name) == lookup {
				return m, nil
			}
		}
		return backend.Model{}, backend.ErrModelNotFound
	}
	var details wire.NativeModelDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return backend.Model{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	return backend.Model{Name: name, Family: details.Family, Parameters: details.ParameterSize}, nil
}

// GenerateEmbeddings implements backend.Adapter. One backend call per
// input string, sequentially, preserving input order (spec.md §9 Open
// Question, decided in DESIGN.md).
func (a *Adapter) GenerateEmbeddings(ctx context.Context, req backend.EmbeddingsRequest) (backend.EmbeddingsResponse, error) {
	out := backend.EmbeddingsResponse{Model: req.Model, Data: make([]backend.Embedding, len(req.Input))}
	for i, input := range req.Input {
		body, _ := json.Marshal(map[string]string{"model": req.Model, "prompt": input})
		resp, err := a.http.Do(ctx, http.MethodPost, a.config.BaseURL+"/api/embeddings", body)
		if err != nil {
			return backend.EmbeddingsResponse{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
		}
		if !httpclient.Success(resp.StatusCode) {
			err := readUpstreamError(resp)
			resp.Body.Close()
			return backend.EmbeddingsResponse{}, err
		}
		var parsed struct {
			Embedding []float64 `json:"embedding"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decErr != nil {
			return backend.EmbeddingsResponse{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, decErr)
		}
		out.Data[i] = backend.Embedding{Index: i, Embedding: parsed.Embedding}
	}
	return out, nil
}

// GetVersion implements backend.Adapter.
func (a *Adapter) GetVersion(ctx context.Context) backend.VersionInfo {
	resp, err := a.http.Do(ctx, http.MethodGet, a.config.BaseURL+"/api/version", nil)
	if err != nil {
		return backend.VersionInfo{Version: "unknown", Backend: backend.Native}
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		return backend.VersionInfo{Version: "unknown", Backend: backend.Native}
	}
	var parsed wire.NativeVersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Version == "" {
		return backend.VersionInfo{Version: "unknown", Backend: backend.Native}
	}
	return backend.VersionInfo{Version: parsed.Version, Backend: backend.Native}
}

var (
	_ core.Module       = (*Adapter)(nil)
	_ core.Configurable = (*Adapter)(nil)
	_ core.Provisioner  = (*Adapter)(nil)
	_ core.Validator    = (*Adapter)(nil)
	_ backend.Adapter   = (*Adapter)(nil)
)
