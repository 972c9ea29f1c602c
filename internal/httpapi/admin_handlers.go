package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/registry"
)

// healthzResponse mirrors the teacher gateway's HealthResponse shape
// (internal/gateway/health.go), generalized from session/provider health
// to backend-detection health.
type healthzResponse struct {
	Status  string                            `json:"status"`
	Current backend.ID                        `json:"current,omitempty"`
	Details map[backend.ID]registry.HealthStatus `json:"backends,omitempty"`
}

// handleHealthz serves GET /healthz. Returns 200 if the current backend is
// available, 503 if degraded (spec.md §6; modeled on the teacher's
// /health "ok"/"degraded" distinction).
func (m *Module) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := m.reg.DetectBackends(r.Context(), false)
		current := m.reg.Current(r.Context())

		resp := healthzResponse{Status: "ok", Current: current, Details: result.Details}
		if current == "" {
			resp.Status = "degraded"
		} else if st, ok := result.Details[current]; ok && !st.IsAvailable {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// handleBackendStatus serves GET /api/backends/{id}/status (SPEC_FULL.md
// addition): per-backend detail from the same detection cache /healthz
// uses, scoped to one backend identifier.
func (m *Module) handleBackendStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := backend.ID(chi.URLParam(r, "id"))
		result := m.reg.DetectBackends(r.Context(), false)
		status, ok := result.Details[id]
		if !ok {
			writeError(w, http.StatusNotFound, "backend not registered: "+string(id))
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// handleBackendSwitch serves POST /api/backends/{id}/switch (SPEC_FULL.md
// addition, implementing spec.md §4.5 "switchBackend(target, opts)" as an
// HTTP operation). Body: {"force": bool, "validate": bool, "restart": bool}.
func (m *Module) handleBackendSwitch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := backend.ID(chi.URLParam(r, "id"))

		var opts switchRequest
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err == nil && len(body) > 0 {
			_ = json.Unmarshal(body, &opts)
		}

		err = m.reg.SwitchBackend(r.Context(), id, registry.SwitchOptions{
			Force:                opts.Force,
			ValidateAvailability: opts.Validate,
			PersistRestart:       opts.Restart,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"backend": string(id), "status": "switched"})
	}
}

type switchRequest struct {
	Force    bool `json:"force"`
	Validate bool `json:"validate"`
	Restart  bool `json:"restart"`
}
