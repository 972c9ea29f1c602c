package proxy

import (
	"errors"

	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/registry"
	"github.com/meshnode/meshnode/internal/resolver"
	"gopkg.in/yaml.v3"
)

var (
	errRegistryNotProvisioned = errors.New("proxy: registry service not provisioned yet")
	errResolverNotProvisioned = errors.New("proxy: resolver service not provisioned yet")
)

func init() {
	core.RegisterModule(&Module{})
}

// Module wires the Engine into the runtime, pulling the registry (C5) and
// resolver (C6) services the Engine depends on.
type Module struct {
	eng *Engine
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "proxy",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable. No config surface of its own.
func (m *Module) Configure(node *yaml.Node) error { return nil }

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	regSvc, ok := ctx.GetService("registry")
	if !ok {
		return errRegistryNotProvisioned
	}
	reg := regSvc.(*registry.Registry)

	resSvc, ok := ctx.GetService("resolver")
	if !ok {
		return errResolverNotProvisioned
	}
	res := resSvc.(*resolver.Resolver)

	var metricsReg *metrics.Registry
	if svc, ok := ctx.GetService("metrics"); ok {
		metricsReg = svc.(*metrics.Registry)
	}

	m.eng = New(reg, res, metricsReg, ctx.Logger)
	ctx.RegisterService("proxy", m.eng)
	return nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)
