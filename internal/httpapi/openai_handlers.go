package httpapi

import (
	"io"
	"net/http"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/wire"
	"github.com/tidwall/gjson"
)

// handleOpenAIChatCompletions serves POST /v1/chat/completions.
func (m *Module) handleOpenAIChatCompletions() http.HandlerFunc {
	return m.dispatchHandler(proxy.KindChat)
}

// handleOpenAICompletions serves POST /v1/completions.
func (m *Module) handleOpenAICompletions() http.HandlerFunc {
	return m.dispatchHandler(proxy.KindComplete)
}

// handleOpenAIModels serves GET /v1/models.
func (m *Module) handleOpenAIModels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := m.currentAdapter(r)
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, "no backend currently available")
			return
		}
		models := adapter.ListModels(r.Context())
		entries := make([]wire.OpenAIModelEntry, 0, len(models))
		for _, mod := range models {
			entries = append(entries, wire.OpenAIModelEntry{ID: mod.Name, Object: "model", OwnedBy: "meshnode"})
		}
		writeJSON(w, http.StatusOK, wire.OpenAIModelsResponse{Object: "list", Data: entries})
	}
}

// handleOpenAIEmbeddings serves POST /v1/embeddings.
func (m *Module) handleOpenAIEmbeddings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if !gjson.ValidBytes(body) {
			writeValidationError(w, http.StatusBadRequest, &wire.ValidationError{
				Message: "malformed json",
				Fields:  []wire.FieldError{{Field: "", Message: "body is not valid JSON"}},
			})
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
		writeJSON(w, http.StatusOK, resp)
	}
}
