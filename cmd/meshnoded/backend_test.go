package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSwitchBackend_PostsSwitchRequest(t *testing.T) {
	var gotPath string
	var gotBody switchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"backend":"openai_compat","status":"switched"}`))
	}))
	defer srv.Close()

	err := switchBackend(srv.URL, "openai_compat", switchRequest{Force: true})
	if err != nil {
		t.Fatalf("switchBackend() error: %v", err)
	}
	if gotPath != "/api/backends/openai_compat/switch" {
		t.Errorf("path = %q, want /api/backends/openai_compat/switch", gotPath)
	}
	if !gotBody.Force {
		t.Error("expected Force: true in request body")
	}
}

func TestSwitchBackend_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"backend unhealthy"}`))
	}))
	defer srv.Close()

	if err := switchBackend(srv.URL, "native", switchRequest{}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestBackendStatus_GetsStatus(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"healthy":true}`))
	}))
	defer srv.Close()

	if err := backendStatus(srv.URL, "native"); err != nil {
		t.Fatalf("backendStatus() error: %v", err)
	}
	if gotPath != "/api/backends/native/status" {
		t.Errorf("path = %q, want /api/backends/native/status", gotPath)
	}
}

func TestBackendStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"backend not registered"}`))
	}))
	defer srv.Close()

	if err := backendStatus(srv.URL, "bogus"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
