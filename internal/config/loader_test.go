package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "meshnoded.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvVar(t *testing.T) {
	t.Setenv("MESHNODE_TEST_KEY", "secret-123")
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: \"1\"\nmodules:\n  registry:\n    key: ${MESHNODE_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("Version = %q, want 1", cfg.Version)
	}

	var decoded struct {
		Key string `yaml:"key"`
	}
	node := cfg.Modules["registry"]
	if err := node.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Key != "secret-123" {
		t.Errorf("Key = %q, want secret-123", decoded.Key)
	}
}

func TestLoad_DefaultValue(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: \"1\"\nmodules:\n  httpapi:\n    bind: ${MESHNODE_BIND:-127.0.0.1:11434}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	var decoded struct {
		Bind string `yaml:"bind"`
	}
	if err := cfg.Modules["httpapi"].Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bind != "127.0.0.1:11434" {
		t.Errorf("Bind = %q, want 127.0.0.1:11434", decoded.Bind)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: \"1\"\nmodules:\n  registry:\n    key: ${MESHNODE_DOES_NOT_EXIST}\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "MESHNODE_DOES_NOT_EXIST") {
		t.Errorf("error should name the unresolved variable: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "version: [unterminated\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
