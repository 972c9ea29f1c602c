package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfigPath_FindsCwdFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(cwd) }()

	if err := os.WriteFile(filepath.Join(dir, "meshnoded.yaml"), []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("XDG_CONFIG_HOME")

	got, err := resolveConfigPath()
	if err != nil {
		t.Fatalf("resolveConfigPath() error: %v", err)
	}
	if got != "meshnoded.yaml" {
		t.Fatalf("resolveConfigPath() = %q, want %q", got, "meshnoded.yaml")
	}
}

func TestResolveConfigPath_NoneFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(cwd) }()

	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("XDG_CONFIG_HOME")

	if _, err := resolveConfigPath(); err == nil {
		t.Fatal("expected error when no config file is present")
	}
}

func TestDefaultDataDir_UsesXDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	got := defaultDataDir()
	want := filepath.Join("/tmp/xdg-data", "meshnoded")
	if got != want {
		t.Fatalf("defaultDataDir() = %q, want %q", got, want)
	}
}

func TestBuildApp_MissingFile(t *testing.T) {
	if _, _, err := buildApp(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
