// Package configstore implements the node's durable JSON config document
// (spec.md §6 "Config store"): a single file at <user-config>/config.json
// holding clientType, frameworkConfig, resourceConfig, and gatewayConfig,
// written atomically with rolling backups.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxBackups matches spec.md §6 "up to 5 backup copies retained".
const maxBackups = 5

// Document is the full shape of config.json (spec.md §6).
type Document struct {
	ClientType      string          `json:"clientType,omitempty"`
	FrameworkConfig json.RawMessage `json:"frameworkConfig,omitempty"`
	ResourceConfig  json.RawMessage `json:"resourceConfig,omitempty"`
	GatewayConfig   json.RawMessage `json:"gatewayConfig,omitempty"`
}

// Store is a mutex-guarded handle to the config document on disk.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a Store bound to path, creating the parent directory and
// an empty document if neither exists yet.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("configstore: create directory %s: %w", dir, err)
		}
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeDocument(Document{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads the current document.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDocument()
}

func (s *Store) readDocument() (Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, fmt.Errorf("configstore: read %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("configstore: decode %s: %w", s.path, err)
	}
	return doc, nil
}

// Set updates a single top-level key by name ("clientType",
// "frameworkConfig", "resourceConfig", "gatewayConfig") and persists the
// whole document atomically. Implements the registry.ConfigStore
// interface.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("configstore: marshal %s: %w", key, err)
	}

	switch key {
	case "clientType":
		var clientType string
		if err := json.Unmarshal(raw, &clientType); err != nil {
			return fmt.Errorf("configstore: clientType must be a string: %w", err)
		}
		doc.ClientType = clientType
	case "frameworkConfig":
		doc.FrameworkConfig = raw
	case "resourceConfig":
		doc.ResourceConfig = raw
	case "gatewayConfig":
		doc.GatewayConfig = raw
	default:
		return fmt.Errorf("configstore: unknown key %q", key)
	}

	return s.writeDocument(doc)
}

// writeDocument persists doc atomically (write-temp-then-rename) and
// rotates up to maxBackups prior copies, per spec.md §6 "Writes are
// atomic... up to 5 backup copies retained" (grounded on the teacher
// pack's cshaiku-goshi internal/fs/write_apply.go CreateTemp+Sync+Rename
// idiom).
func (s *Store) writeDocument(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("configstore: marshal document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("configstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("configstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("configstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("configstore: close temp file: %w", err)
	}

	s.rotateBackups()

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("configstore: rename into place: %w", err)
	}
	return nil
}

// rotateBackups shifts config.json.1..4 to .2..5 and copies the current
// config.json to config.json.1, dropping anything beyond maxBackups.
func (s *Store) rotateBackups() {
	if _, err := os.Stat(s.path); err != nil {
		return // nothing to back up yet
	}
	for i := maxBackups - 1; i >= 1; i-- {
		src := s.backupPath(i)
		dst := s.backupPath(i + 1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	_ = os.WriteFile(s.backupPath(1), data, 0o600)
}

func (s *Store) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", s.path, n)
}
