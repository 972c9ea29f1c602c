package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func healthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSupervisor_StartStop(t *testing.T) {
	srv := healthyServer(t)
	sup := New(Config{
		Backend:   "native",
		HealthURL: srv.URL,
		LogDir:    t.TempDir(),
	}, nil)

	start := StartConfig{Command: "sleep", Args: []string{"30"}}
	if err := sup.Start(context.Background(), start); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sup.Status(context.Background()).State != Running {
		t.Fatalf("expected Running, got %s", sup.Status(context.Background()).State)
	}

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := sup.Status(context.Background()).State; st != Stopped {
		t.Fatalf("expected Stopped after Stop, got %s", st)
	}
	if _, err := os.Stat(pidFilePath("native")); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err = %v", err)
	}
}

func TestSupervisor_StartRefusesWhenRunning(t *testing.T) {
	srv := healthyServer(t)
	sup := New(Config{Backend: "native", HealthURL: srv.URL, LogDir: t.TempDir()}, nil)

	start := StartConfig{Command: "sleep", Args: []string{"30"}}
	if err := sup.Start(context.Background(), start); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(context.Background())

	if err := sup.Start(context.Background(), start); err == nil {
		t.Fatal("expected second Start to fail while running")
	}
}

// TestSupervisor_StartFailsWhenNeverReady exercises the real 30s
// readiness timeout, so it is skipped outside of long test runs.
func TestSupervisor_StartFailsWhenNeverReady(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 30s readiness-timeout test in -short mode")
	}
	sup := New(Config{Backend: "native", HealthURL: "http://127.0.0.1:1/health", LogDir: t.TempDir()}, nil)

	start := StartConfig{Command: "sleep", Args: []string{"60"}}
	err := sup.Start(context.Background(), start)
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if sup.Status(context.Background()).State != Stopped {
		t.Fatalf("expected Stopped after failed start, got %s", sup.Status(context.Background()).State)
	}
}

func TestSupervisor_UnexpectedExitResetsToStopped(t *testing.T) {
	srv := healthyServer(t)
	sup := New(Config{Backend: "native", HealthURL: srv.URL, LogDir: t.TempDir()}, nil)

	start := StartConfig{Command: "sleep", Args: []string{"0.2"}}
	if err := sup.Start(context.Background(), start); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Status(context.Background()).State == Stopped {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected supervisor to return to Stopped after child exit, still %s", sup.Status(context.Background()).State)
}

func TestSupervisor_RestartOnFailureRespectsMaxRestarts(t *testing.T) {
	srv := healthyServer(t)
	store, err := OpenCrashStore(filepath.Join(t.TempDir(), "crashes.db"))
	if err != nil {
		t.Fatalf("OpenCrashStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sup := New(Config{
		Backend:          "native",
		HealthURL:        srv.URL,
		LogDir:           t.TempDir(),
		RestartOnFailure: true,
		MaxRestarts:      2,
		CrashStore:       store,
	}, nil)

	start := StartConfig{Command: "sleep", Args: []string{"0.1"}}
	if err := sup.Start(context.Background(), start); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sup.mu.Lock()
		restarts := sup.restartCount
		sup.mu.Unlock()
		if restarts >= 2 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	n, err := store.CrashesSince(context.Background(), "native", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CrashesSince: %v", err)
	}
	if n == 0 {
		t.Fatal("expected at least one crash recorded")
	}
	_ = sup.Stop(context.Background())
}

func TestCrashStore_RecordAndCount(t *testing.T) {
	store, err := OpenCrashStore(filepath.Join(t.TempDir(), "crashes.db"))
	if err != nil {
		t.Fatalf("OpenCrashStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	if err := store.RecordCrash(ctx, "native", 1, now); err != nil {
		t.Fatalf("RecordCrash: %v", err)
	}
	if err := store.RecordCrash(ctx, "native", 1, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordCrash: %v", err)
	}

	n, err := store.CrashesSince(ctx, "native", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CrashesSince: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 crash within 24h window, got %d", n)
	}
}
