package resolver

import (
	"errors"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/registry"
	"gopkg.in/yaml.v3"
)

var errRegistryNotProvisioned = errors.New("resolver: registry service not provisioned yet")

func init() {
	core.RegisterModule(&Module{})
}

// Module wires the Resolver into the runtime, reading adapters through
// the Registry (C5) so it always resolves against whichever adapter
// instance is currently registered.
type Module struct {
	res *Resolver
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "resolver",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable. No config surface of its own.
func (m *Module) Configure(node *yaml.Node) error { return nil }

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	svc, ok := ctx.GetService("registry")
	if !ok {
		return errRegistryNotProvisioned
	}
	reg := svc.(*registry.Registry)

	m.res = New(func(id backend.ID) backend.Adapter { return reg.Adapter(id) }, ctx.Logger)
	ctx.RegisterService("resolver", m.res)
	return nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)
