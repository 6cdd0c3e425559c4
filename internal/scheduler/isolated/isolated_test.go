package isolated

import (
	"context"
	"os"
	"testing"
	"time"
)

func testTopicName(t *testing.T) string {
	t.Helper()
	return "isolated-test/" + t.Name()
}

func TestSupervisorProcessLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "sh"
	cfg.Args = []string{"-c", "sleep 1"}
	cfg.Topic = testTopicName(t)

	sup, err := NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	defer sup.Shutdown(context.Background())

	if err := sup.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := sup.Tick(context.Background()); err != nil {
		t.Fatalf("Tick on a live child should not error: %v", err)
	}
	if sup.RestartCount() != 0 {
		t.Fatalf("RestartCount() = %d, want 0", sup.RestartCount())
	}
}

func TestSupervisorRestartsOnCrash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "sh"
	cfg.Args = []string{"-c", "exit 1"}
	cfg.Topic = testTopicName(t)
	cfg.RestartOnCrash = true
	cfg.RestartBackoff = time.Millisecond
	cfg.MaxRestarts = 2

	sup, err := NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	defer sup.Shutdown(context.Background())

	if err := sup.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Give the child a moment to exit before the first tick observes it as
	// dead and triggers a restart.
	// Either a successful restart or an exceeded-restarts error is
	// acceptable for each of these, depending on scheduler timing; only the
	// restart count bound below is asserted.
	time.Sleep(20 * time.Millisecond)
	_ = sup.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	_ = sup.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	_ = sup.Tick(context.Background())

	if sup.RestartCount() > cfg.MaxRestarts {
		t.Fatalf("RestartCount() = %d, exceeds MaxRestarts %d", sup.RestartCount(), cfg.MaxRestarts)
	}
}

func TestSupervisorRejectsEmptyTopic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "true"
	if _, err := NewSupervisor(cfg); err == nil {
		t.Fatal("expected an error for an empty topic name")
	}
}

func TestSupervisorWithoutRestartFailsAfterCrash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "sh"
	cfg.Args = []string{"-c", "exit 1"}
	cfg.Topic = testTopicName(t)
	cfg.RestartOnCrash = false

	sup, err := NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	defer sup.Shutdown(context.Background())

	if err := sup.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := sup.Tick(context.Background()); err == nil {
		t.Fatal("expected Tick to error once the unrestarted child has exited")
	}
	if !sup.IsCrashed() {
		t.Fatal("expected the supervisor to report crashed once out of restarts")
	}
}

func TestBackendString(t *testing.T) {
	if BackendProcess.String() != "process" {
		t.Fatalf("BackendProcess.String() = %q", BackendProcess.String())
	}
	if BackendWasm.String() != "wasm" {
		t.Fatalf("BackendWasm.String() = %q", BackendWasm.String())
	}
}

func TestMain(m *testing.M) {
	// Scope the POD topics this package opens to a throwaway directory so
	// tests never collide with a real deployment's shared-memory namespace.
	os.Setenv("HORUS_SHM_DIR", os.TempDir())
	os.Exit(m.Run())
}
