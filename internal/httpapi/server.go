// Package httpapi implements the node's local HTTP surface (spec.md §6):
// the native and OpenAI-compat proxied endpoints, plus the SPEC_FULL.md
// additions /metrics and /api/backends/{id}/status. Routing follows the
// teacher gateway's buildRouter/module-lifecycle idiom (internal/gateway),
// with its handlers replaced by calls into proxy.Engine and
// registry.Registry.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/proxy"
	"github.com/meshnode/meshnode/internal/registry"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module is the local HTTP surface module. It is a leaf module — nothing
// imports it — mirroring the teacher gateway's role.
type Module struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	server  *http.Server
	engine  *proxy.Engine
	reg     *registry.Registry
	metrics *metrics.Registry
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "httpapi",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if node == nil {
		m.config.defaults()
		return nil
	}
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.logger = ctx.Logger

	proxySvc, ok := ctx.GetService("proxy")
	if !ok {
		return errors.New("httpapi: proxy service not provisioned yet")
	}
	m.engine = proxySvc.(*proxy.Engine)

	regSvc, ok := ctx.GetService("registry")
	if !ok {
		return errors.New("httpapi: registry service not provisioned yet")
	}
	m.reg = regSvc.(*registry.Registry)

	if svc, ok := ctx.GetService("metrics"); ok {
		m.metrics = svc.(*metrics.Registry)
	}

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", m.config.Bind); err != nil {
		return errors.New("httpapi: invalid bind address: " + m.config.Bind)
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	m.server = &http.Server{
		Addr:         m.config.Bind,
		Handler:      m.buildRouter(),
		ReadTimeout:  m.config.ReadTimeout,
		WriteTimeout: m.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", m.config.Bind)
	if err != nil {
		return errors.New("httpapi: listen failed: " + err.Error())
	}

	go func() {
		m.logger.Info("httpapi listening", "addr", m.config.Bind)
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("httpapi serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	m.logger.Info("httpapi shutting down")
	return m.server.Shutdown(shutdownCtx)
}

// buildRouter constructs the chi mux with spec.md §6's routing table plus
// the SPEC_FULL.md additions.
func (m *Module) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", m.handleHealthz())

	// Native (Ollama-style) surface.
	r.Post("/api/chat", m.handleNativeChat())
	r.Post("/api/generate", m.handleNativeGenerate())
	r.Get("/api/tags", m.handleNativeTags())
	r.Post("/api/show", m.handleNativeShow())
	r.Get("/api/version", m.handleNativeVersion())
	r.Post("/api/embeddings", m.handleNativeEmbeddings())
	r.Get("/api/ps", m.handleNativePs())

	// OpenAI-compat (vLLM-style) surface.
	r.Post("/v1/chat/completions", m.handleOpenAIChatCompletions())
	r.Post("/v1/completions", m.handleOpenAICompletions())
	r.Get("/v1/models", m.handleOpenAIModels())
	r.Post("/v1/embeddings", m.handleOpenAIEmbeddings())

	// Operational surface (SPEC_FULL.md additions).
	if m.metrics != nil {
		r.Get("/metrics", m.metrics.Handler().ServeHTTP)
	}
	r.Get("/api/backends/{id}/status", m.handleBackendStatus())
	r.Post("/api/backends/{id}/switch", m.handleBackendSwitch())

	return r
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
