package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/wire"
	"github.com/tidwall/gjson"
)

// handleNativeChat serves POST /api/chat.
func (m *Module) handleNativeChat() http.HandlerFunc {
	return m.dispatchHandler(proxy.KindChat)
}

// handleNativeGenerate serves POST /api/generate.
func (m *Module) handleNativeGenerate() http.HandlerFunc {
	return m.dispatchHandler(proxy.KindComplete)
}

// dispatchHandler is shared by every chat/completion-shaped route (native
// and OpenAI-compat alike): read the body, determine streaming, select
// SSE/NDJSON headers, and dispatch through the proxy engine (spec.md §4.7
// step 4.a).
func (m *Module) dispatchHandler(kind proxy.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		stream := true
		if v := gjson.GetBytes(body, "stream"); v.Exists() {
			stream = v.Bool()
		}

		headers := proxy.HeadersFor(m.reg.Current(r.Context()), r.URL.Path)
		w.Header().Set("Content-Type", headers.ContentType)
		if headers.CacheControl != "" {
			w.Header().Set("Cache-Control", headers.CacheControl)
		}
		if headers.Connection != "" {
			w.Header().Set("Connection", headers.Connection)
		}

		req := proxy.Request{
			Kind:     kind,
			Body:     body,
			Stream:   stream,
			Model:    gjson.GetBytes(body, "model").String(),
			Pathname: r.URL.Path,
		}

		sink := newResponseSink(w)
		if _, err := m.engine.Dispatch(r.Context(), req, sink); err != nil {
			// Headers/body bytes may already be flushed for a mid-stream
			// failure; a best-effort trailing error line is all a caller
			// already mid-stream can act on.
			m.logger.Warn("httpapi: dispatch failed", "path", r.URL.Path, "error", err)
			if !sink.wrote {
				var verr *wire.ValidationError
				if errors.As(err, &verr) {
					writeValidationError(w, http.StatusBadRequest, verr)
					return
				}
				writeError(w, http.StatusBadGateway, err.Error())
			}
		}
	}
}

// maxRequestBodyBytes bounds a single request body the way the teacher's
// internal/security/validation.go bounds webhook payloads, applied here to
// chat/completion/embeddings bodies.
const maxRequestBodyBytes = 32 * 1024 * 1024

// handleNativeTags serves GET /api/tags.
func (m *Module) handleNativeTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := m.currentAdapter(r)
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, "no backend currently available")
			return
		}
		writeJSON(w, http.StatusOK, nativeTagsResponse{Models: adapter.ListModels(r.Context())})
	}
}

// handleNativeShow serves POST /api/show.
func (m *Module) handleNativeShow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := m.currentAdapter(r)
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, "no backend currently available")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		name := gjson.GetBytes(body, "model").String()
		if name == "" {
			name = gjson.GetBytes(body, "name").String()
		}
		info, err := adapter.GetModelInfo(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// handleNativeVersion serves GET /api/version.
func (m *Module) handleNativeVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := m.currentAdapter(r)
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, "no backend currently available")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"version": adapter.GetVersion(r.Context()).Version})
	}
}

// handleNativeEmbeddings serves POST /api/embeddings.
func (m *Module) handleNativeEmbeddings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		req := backend.EmbeddingsRequest{
			Model: gjson.GetBytes(body, "model").String(),
			Input: embeddingInputs(body),
		}
		resp, _, err := m.engine.DispatchEmbeddings(r.Context(), req, "")
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if len(resp.Data) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"embedding": []float64{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"embedding": resp.Data[0].Embedding})
	}
}

// handleNativePs serves GET /api/ps. The node has no separate concept of
// "currently loaded" vs. "available" models (that distinction lives inside
// the backend process, not this node), so it reports the full inventory.
func (m *Module) handleNativePs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := m.currentAdapter(r)
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, "no backend currently available")
			return
		}
		writeJSON(w, http.StatusOK, nativeTagsResponse{Models: adapter.ListModels(r.Context())})
	}
}

func (m *Module) currentAdapter(r *http.Request) backend.Adapter {
	id := m.reg.Current(r.Context())
	if id == "" {
		return nil
	}
	return m.reg.Adapter(id)
}

// embeddingInputs normalizes Ollama's embeddings request, which accepts
// either a single "prompt" string or an "input" string/array.
func embeddingInputs(body []byte) []string {
	if v := gjson.GetBytes(body, "input"); v.Exists() {
		if v.IsArray() {
			out := make([]string, 0, len(v.Array()))
			for _, item := range v.Array() {
				out = append(out, item.String())
			}
			return out
		}
		return []string{v.String()}
	}
	if v := gjson.GetBytes(body, "prompt"); v.Exists() {
		return []string{v.String()}
	}
	return nil
}

type nativeTagsResponse struct {
	Models []backend.Model `json:"models"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// problemDetail is an RFC 7807-flavored error body (spec.md §7: "400 with a
// structured body listing offending paths"). Fields is only populated for
// validation failures; every other error path leaves it nil and the body
// degrades to a plain title/detail pair.
type problemDetail struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields []wire.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeProblem(w, status, msg, nil)
}

// writeValidationError renders a *wire.ValidationError as a problemDetail
// body, carrying its field-path list through to the caller.
func writeValidationError(w http.ResponseWriter, status int, verr *wire.ValidationError) {
	writeProblem(w, status, verr.Message, verr.Fields)
}

func writeProblem(w http.ResponseWriter, status int, detail string, fields []wire.FieldError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Fields: fields,
	})
}
