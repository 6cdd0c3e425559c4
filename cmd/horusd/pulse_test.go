package main

import (
	"context"
	"os"
	"testing"

	"github.com/horus-rt/horus/internal/replay"
)

func TestMain(m *testing.M) {
	os.Setenv("HORUS_SHM_DIR", os.TempDir())
	os.Exit(m.Run())
}

func TestPulseNodeLifecycleWithoutRecording(t *testing.T) {
	p := newPulseNode("pulse-test", replay.RecorderConfig{}, false)
	ctx := context.Background()

	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if p.tick != 3 {
		t.Fatalf("tick = %d, want 3", p.tick)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestPulseNodeLifecycleWithRecording(t *testing.T) {
	cfg := replay.DefaultRecorderConfig()
	cfg.BaseDir = t.TempDir()
	cfg.SessionName = "pulse-session"

	p := newPulseNode("pulse-rec", cfg, true)
	ctx := context.Background()

	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := p.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	loaded, err := replay.LoadNodeRecording(cfg.NodePath("pulse-rec", "pulse-rec"))
	if err != nil {
		t.Fatalf("LoadNodeRecording: %v", err)
	}
	if len(loaded.Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(loaded.Snapshots))
	}
}
