package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Registry.ListenPort != 55921 {
		t.Errorf("ListenPort = %d, want 55921", cfg.Registry.ListenPort)
	}
	if cfg.Registry.SubsetSize != 4 {
		t.Errorf("SubsetSize = %d, want 4", cfg.Registry.SubsetSize)
	}
	if cfg.Registry.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want 10", cfg.Registry.PoolSize)
	}
	if cfg.Registry.RunDuration.Std() != 10*time.Minute {
		t.Errorf("RunDuration = %v, want 10m", cfg.Registry.RunDuration)
	}
	if cfg.Registry.DrainDuration.Std() != 2*time.Minute {
		t.Errorf("DrainDuration = %v, want 2m", cfg.Registry.DrainDuration)
	}
	if cfg.Peer.FanoutInterval.Std() != 6*time.Second {
		t.Errorf("FanoutInterval = %v, want 6s", cfg.Peer.FanoutInterval)
	}
	if cfg.Peer.LivenessWindow.Std() != 10*time.Second {
		t.Errorf("LivenessWindow = %v, want 10s", cfg.Peer.LivenessWindow)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Error("Load(\"\") should return defaults unchanged")
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
registry:
  listen_port: 6000
  subset_size: 2
peer:
  team_name: team rocket
  fanout_interval: 250ms
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Registry.ListenPort != 6000 {
		t.Errorf("ListenPort = %d, want 6000", cfg.Registry.ListenPort)
	}
	if cfg.Registry.SubsetSize != 2 {
		t.Errorf("SubsetSize = %d, want 2", cfg.Registry.SubsetSize)
	}
	if cfg.Peer.TeamName != "team rocket" {
		t.Errorf("TeamName = %q", cfg.Peer.TeamName)
	}
	if cfg.Peer.FanoutInterval.Std() != 250*time.Millisecond {
		t.Errorf("FanoutInterval = %v, want 250ms", cfg.Peer.FanoutInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Registry.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want default 10", cfg.Registry.PoolSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("registry: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
