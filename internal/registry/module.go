package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/configstore"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

type moduleConfig struct {
	AuditLogPath string `yaml:"auditLogPath"`
}

// Module wires the Registry into the runtime as a core.Module, performing
// the built-in registrations spec.md §4.5 requires: "Native at priority
// 10 (preferred), OpenAI-Compat at priority 20."
type Module struct {
	cfg       moduleConfig
	reg       *Registry
	auditFile *os.File
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "registry",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable. The registry's own config
// surface is limited to where it records switch/audit events; adapter
// selection and availability come from the backend adapters and config
// store.
func (m *Module) Configure(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	return node.Decode(&m.cfg)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	var store ConfigStore
	if svc, ok := ctx.GetService("configstore"); ok {
		if cs, ok := svc.(*configstore.Store); ok {
			store = cs
		}
	}
	var reg *metrics.Registry
	if svc, ok := ctx.GetService("metrics"); ok {
		reg, _ = svc.(*metrics.Registry)
	}

	m.reg = New(store, reg, ctx.Logger)

	nativeSvc, ok := ctx.GetService(backend.Native.ServiceName())
	if !ok {
		return fmt.Errorf("registry: backend.native adapter not provisioned yet")
	}
	openaiSvc, ok := ctx.GetService(backend.OpenAICompat.ServiceName())
	if !ok {
		return fmt.Errorf("registry: backend.openai_compat adapter not provisioned yet")
	}

	m.reg.Register(backend.Native, nativeSvc.(backend.Adapter), 10)
	m.reg.Register(backend.OpenAICompat, openaiSvc.(backend.Adapter), 20)

	m.reg.SetEnvDefault(envDefaultBackend())

	if m.cfg.AuditLogPath != "" {
		f, err := os.OpenFile(m.cfg.AuditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("registry: open audit log: %w", err)
		}
		m.auditFile = f
		m.reg.SetAuditLogger(security.NewAuditLogger(security.AuditLoggerConfig{Writer: f}))
	}

	ctx.RegisterService("registry", m.reg)
	return nil
}

// Stop implements core.Stopper, closing the audit log file if one was
// opened during Provision.
func (m *Module) Stop(ctx context.Context) error {
	if m.auditFile != nil {
		return m.auditFile.Close()
	}
	return nil
}

// envDefaultBackend maps MODEL_INFERENCE_FRAMEWORK (spec.md §6: "ollama" or
// "vllm") to the environment-derived default tier of current-backend
// selection (spec.md §4.5). Returns "" when unset or unrecognized, leaving
// Current to fall through to the hardcoded Native preference.
func envDefaultBackend() backend.ID {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("MODEL_INFERENCE_FRAMEWORK"))) {
	case "ollama":
		return backend.Native
	case "vllm":
		return backend.OpenAICompat
	default:
		return ""
	}
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
