package configstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshnode/meshnode/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

type moduleConfig struct {
	Path string `yaml:"path"`
}

// Module wires the config Store into the runtime (spec.md §6 "Config
// store"). Defaults to <user-config>/meshnode/config.json when no path is
// configured.
type Module struct {
	cfg   moduleConfig
	store *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "configstore",
		New: func() core.Module { return &Module{} },
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
	path := m.cfg.Path
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("configstore: resolve user config dir: %w", err)
		}
		path = filepath.Join(dir, "meshnode", "config.json")
	}
	store, err := Open(path)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService("configstore", m.store)
	return nil
}

var (
	_ core.Module       = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)
