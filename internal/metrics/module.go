package metrics

import (
	"github.com/meshnode/meshnode/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Module wires the Prometheus Registry into the runtime as the "metrics"
// service every other module looks up (registry, proxy, tunnel, httpapi).
// It carries no configuration of its own; every metric name/label is
// fixed at construction (see registry.go).
type Module struct {
	registry *Registry
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "metrics",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable. No configuration surface yet.
func (m *Module) Configure(node *yaml.Node) error { return nil }

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.registry = New()
	ctx.RegisterService("metrics", m.registry)
	return nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)
