package configstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ClientType != "" {
		t.Fatalf("expected empty clientType, got %q", doc.ClientType)
	}
}

func TestSet_ClientType_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Set("clientType", "native"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	doc, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ClientType != "native" {
		t.Fatalf("expected clientType=native, got %q", doc.ClientType)
	}
}

func TestSet_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Set("bogus", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSet_RotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < maxBackups+2; i++ {
		if err := store.Set("clientType", "native"); err != nil {
			t.Fatalf("Set #%d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected backup .1 to exist: %v", err)
	}
	if _, err := os.Stat(path + ".6"); !os.IsNotExist(err) {
		t.Fatalf("expected no backup beyond maxBackups, stat err = %v", err)
	}
}

func TestSet_FrameworkConfig_StoresRawJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := map[string]any{"maxTasks": 4}
	if err := store.Set("frameworkConfig", payload); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(doc.FrameworkConfig, &decoded); err != nil {
		t.Fatalf("decode frameworkConfig: %v", err)
	}
	if decoded["maxTasks"] != float64(4) {
		t.Fatalf("expected maxTasks=4, got %v", decoded["maxTasks"])
	}
}
