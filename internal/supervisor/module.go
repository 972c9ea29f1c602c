package supervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/meshnode/meshnode/internal/backend"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/metrics"
	"github.com/meshnode/meshnode/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{backendID: backend.Native})
	core.RegisterModule(&Module{backendID: backend.OpenAICompat})
}

// moduleConfig is the per-backend YAML shape under supervisor.<backend>:
// command, args, healthPath, restartOnFailure, maxRestarts.
type moduleConfig struct {
	Command          string   `yaml:"command"`
	Args             []string `yaml:"args"`
	HealthPath       string   `yaml:"healthPath"`
	RestartOnFailure bool     `yaml:"restartOnFailure"`
	MaxRestarts      int      `yaml:"maxRestarts"`
	DataDir          string   `yaml:"dataDir"`
}

// Module wires one Supervisor per backend as a core.Module
// (SPEC_FULL.md §C4 ADDED: "wire it as a core.Module (x2 instances, one per
// backend)"). It registers the resulting *Supervisor in the service
// registry so C5/C7/internal httpapi can look it up by backend ID.
type Module struct {
	backendID   backend.ID
	cfg         moduleConfig
	sup         *Supervisor
	credentials *security.CredentialStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	id := core.ModuleID("supervisor." + string(m.backendID))
	backendID := m.backendID
	return core.ModuleInfo{
		ID:  id,
		New: func() core.Module { return &Module{backendID: backendID} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	return node.Decode(&m.cfg)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.cfg.Command == "" {
		return fmt.Errorf("supervisor.%s: command must be configured", m.backendID)
	}
	defaults, _ := backend.DefaultsFor(m.backendID)
	healthPath := m.cfg.HealthPath
	if healthPath == "" {
		healthPath = defaults.HealthEndpoint
	}

	var crashStore *CrashStore
	if m.cfg.DataDir != "" {
		store, err := OpenCrashStore(filepath.Join(m.cfg.DataDir, "supervisor-crashes.db"))
		if err != nil {
			return fmt.Errorf("supervisor.%s: open crash store: %w", m.backendID, err)
		}
		crashStore = store
	}

	var reg *metrics.Registry
	if svc, ok := ctx.GetService("metrics"); ok {
		reg, _ = svc.(*metrics.Registry)
	}
	if svc, ok := ctx.GetService("credentials"); ok {
		m.credentials, _ = svc.(*security.CredentialStore)
	}

	m.sup = New(Config{
		Backend:          string(m.backendID),
		HealthURL:        defaults.DefaultURL + healthPath,
		RestartOnFailure: m.cfg.RestartOnFailure,
		MaxRestarts:      m.cfg.MaxRestarts,
		CrashStore:       crashStore,
		Metrics:          reg,
	}, ctx.Logger)

	ctx.RegisterService("supervisor."+string(m.backendID), m.sup)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.cfg.Command == "" {
		return fmt.Errorf("supervisor.%s: command must not be empty", m.backendID)
	}
	return nil
}

// Start implements core.Starter: spawns the backend process. The child's
// environment is stripped of this node's own secrets (tunnel tokens,
// pairing codes, the other backend's API key) so a compromised backend
// process can't read them out of its own environment block.
func (m *Module) Start() error {
	env := security.SanitizedEnv(m.credentials)
	return m.sup.Start(context.Background(), StartConfig{Command: m.cfg.Command, Args: m.cfg.Args, Env: env})
}

// Stop implements core.Stopper: gracefully stops the backend process.
func (m *Module) Stop(ctx context.Context) error {
	return m.sup.Stop(ctx)
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)
