// Package openaicompat implements the vLLM-style OpenAI-compatible backend
// adapter (spec.md §4.3 "OpenAI-Compat adapter specifics").
package openaicompat

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
	"github.com/meshnode/meshnode/internal/security"
	"github.com/meshnode/meshnode/internal/wire"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Adapter{})
}

// Adapter is the OpenAI-Compat backend adapter.
type Adapter struct {
	config Config
	http   *httpclient.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Adapter) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "backend.openai_compat",
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
	a.http = httpclient.New(httpclient.Timeouts{Request: a.config.Timeout, MaxRetries: a.config.MaxRetries}, "meshnode-openai-compat/1.0")

	if a.config.APIKey != "" {
		if svc, ok := ctx.GetService("credentials"); ok {
			if creds, ok := svc.(*security.CredentialStore); ok {
				creds.Set("backend.openai_compat.api_key", a.config.APIKey)
			}
		}
		if svc, ok := ctx.GetService("redactor"); ok {
			if redactor, ok := svc.(*security.Redactor); ok {
				redactor.AddLiteral(a.config.APIKey)
			}
		}
	}

	ctx.RegisterService(backend.OpenAICompat.ServiceName(), backend.Adapter(a))
	return nil
}

// Validate implements core.Validator.
func (a *Adapter) Validate() error {
	return a.config.validate()
}

// ID implements backend.Adapter.
func (a *Adapter) ID() backend.ID { return backend.OpenAICompat }

// BaseURL implements backend.Adapter.
func (a *Adapter) BaseURL() string { return a.config.BaseURL }

func (a *Adapter) authHeader() http.Header {
	if a.config.APIKey == "" {
		return nil
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+a.config.APIKey)
	return h
}

// Chat implements backend.Adapter.
func (a *Adapter) Chat(ctx context.Context, req backend.ChatRequest, sink backend.Sink, pathname string) error {
	return a.dispatch(ctx, a.config.BaseURL+"/v1/chat/completions", req.Raw, req.Stream, sink)
}

// Complete implements backend.Adapter.
func (a *Adapter) Complete(ctx context.Context, req backend.CompletionRequest, sink backend.Sink, pathname string) error {
	return a.dispatch(ctx, a.config.BaseURL+"/v1/completions", req.Raw, req.Stream, sink)
}

func (a *Adapter) dispatch(ctx context.Context, endpoint string, body json.RawMessage, stream bool, sink backend.Sink) error {
	if stream {
		resp, err := a.http.OpenStreamWithHeaders(ctx, http.MethodPost, endpoint, body, a.authHeader())
		if err != nil {
			return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
		}
		defer resp.Body.Close()
		if !httpclient.Success(resp.StatusCode) {
			return readUpstreamError(resp)
		}
		err = copyStream(ctx, resp.Body, sink)
		return err
	}

	resp, err := a.http.DoWithHeaders(ctx, http.MethodPost, endpoint, body, a.authHeader())
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

func copyStream(ctx context.Context, body io.Reader, sink backend.Sink) error {
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := body.Read(buf)
		if n > 0 {
			if werr := sink.Write(append([]byte(nil), buf[:n]...)); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			if werr := sink.Write([]byte(wire.SSETerminator)); werr != nil {
				return werr
			}
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

// CheckStatus implements backend.Adapter. There is no dedicated version
// endpoint for OpenAI-Compat; probing /v1/models with a 200 constitutes
// "available" (spec.md §4.3).
func (a *Adapter) CheckStatus(ctx context.Context) bool {
	resp, err := a.http.DoWithHeaders(ctx, http.MethodGet, a.config.BaseURL+"/v1/models", nil, a.authHeader())
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return httpclient.Success(resp.StatusCode)
}

// ListModels implements backend.Adapter.
func (a *Adapter) ListModels(ctx context.Context) []backend.Model {
	resp, err := a.http.DoWithHeaders(ctx, http.MethodGet, a.config.BaseURL+"/v1/models", nil, a.authHeader())
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		return nil
	}
	var parsed wire.OpenAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil
	}
	out := make([]backend.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, backend.Model{Name: m.ID})
	}
	return out
}

// GetModelInfo implements backend.Adapter.
func (a *Adapter) GetModelInfo(ctx context.Context, name string) (backend.Model, error) {
	lookup := strings.ToLower(strings.TrimSpace(name))
	for _, m := range a.ListModels(ctx) {
		if strings.ToLower(m.Name) == lookup {
			return m, nil
		}
	}
	return backend.Model{}, backend.ErrModelNotFound
}

// GenerateEmbeddings implements backend.Adapter.
func (a *Adapter) GenerateEmbeddings(ctx context.Context, req backend.EmbeddingsRequest) (backend.EmbeddingsResponse, error) {
	body, _ := json.Marshal(req)
	resp, err := a.http.DoWithHeaders(ctx, http.MethodPost, a.config.BaseURL+"/v1/embeddings", body, a.authHeader())
	if err != nil {
		return backend.EmbeddingsResponse{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if !httpclient.Success(resp.StatusCode) {
		return backend.EmbeddingsResponse{}, readUpstreamError(resp)
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage wire.OpenAIUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return backend.EmbeddingsResponse{}, fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	out := backend.EmbeddingsResponse{Model: req.Model, Data: make([]backend.Embedding, len(parsed.Data))}
	for i, d := range parsed.Data {
		out.Data[i] = backend.Embedding{Index: d.Index, Embedding: d.Embedding}
	}
	out.Usage = backend.Usage{PromptEvalCount: parsed.Usage.PromptTokens, EvalCount: parsed.Usage.CompletionTokens}
	return out, nil
}

// GetVersion implements backend.Adapter. OpenAI-Compat has no version
// endpoint; the version string is a synthetic label (spec.md §4.3).
func (a *Adapter) GetVersion(ctx context.Context) backend.VersionInfo {
	if a.CheckStatus(ctx) {
		return backend.VersionInfo{Version: "openai-compat", Backend: backend.OpenAICompat}
	}
	return backend.VersionInfo{Version: "unknown", Backend: backend.OpenAICompat}
}

var (
	_ core.Module       = (*Adapter)(nil)
	_ core.Configurable = (*Adapter)(nil)
	_ core.Provisioner  = (*Adapter)(nil)
	_ core.Validator    = (*Adapter)(nil)
	_ backend.Adapter   = (*Adapter)(nil)
)
