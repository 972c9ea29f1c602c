package tracing

import (
	"context"
	"testing"

	"github.com/meshnode/meshnode/internal/core"
	"gopkg.in/yaml.v3"
)

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if len(node.Content) == 0 {
		return &node
	}
	return node.Content[0]
}

func TestModule_ModuleInfo(t *testing.T) {
	t.Parallel()

	m := &Module{}
	info := m.ModuleInfo()

	if info.ID != "tracing" {
		t.Errorf("ID = %q, want %q", info.ID, "tracing")
	}
	if _, ok := info.New().(*Module); !ok {
		t.Error("New() should return *Module")
	}
}

func TestModule_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(nil); err != nil {
		t.Fatalf("Configure(nil): %v", err)
	}
	if m.config.SampleRatio != 1.0 {
		t.Errorf("SampleRatio = %v, want 1.0", m.config.SampleRatio)
	}
}

func TestModule_ProvisionRegistersService(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustYAMLNode(t, "{}")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	svc, ok := ctx.GetService("tracing")
	if !ok {
		t.Fatal("expected tracing service to be registered")
	}
	if _, ok := svc.(*Provider); !ok {
		t.Error("registered service is not *Provider")
	}
}

func TestModule_StopFlushesProvider(t *testing.T) {
	t.Parallel()

	m := &Module{}
	_ = m.Configure(nil)
	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
