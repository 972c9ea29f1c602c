package tracing

import (
	"context"

	"github.com/meshnode/meshnode/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module wires a Provider into the runtime as the "tracing" service other
// modules can look up to start spans. It carries no dependency on any
// other module (it is provisioned early, alongside metrics), but it is a
// Stopper: the collector exporter must flush on shutdown or buffered spans
// are lost.
type Module struct {
	config   Config
	provider *Provider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "tracing",
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
	provider, err := New(context.Background(), m.config, "meshnode")
	if err != nil {
		return err
	}
	m.provider = provider
	ctx.RegisterService("tracing", m.provider)
	return nil
}

// Stop implements core.Stopper, flushing the OTLP exporter if one was
// configured. Safe to call when tracing was never enabled.
func (m *Module) Stop(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
