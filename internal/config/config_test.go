package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Sandbox.BootTimeout != 120*time.Second {
		t.Errorf("BootTimeout = %v, want 120s", cfg.Sandbox.BootTimeout)
	}
	if cfg.Poll.Interval != 5*time.Second || cfg.Poll.MaxAttempts != 60 {
		t.Errorf("Poll defaults = %+v, want 5s/60", cfg.Poll)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previewd.yaml")
	content := `
listen_addr: ":9000"
fly_org: roseram
sandbox:
  region: fra
  ram_mb: 2048
  cpus: 2
  boot_timeout: 3m
poll:
  interval: 2s
  max_attempts: 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.Sandbox.Region != "fra" || cfg.Sandbox.RAMMB != 2048 {
		t.Errorf("Sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Sandbox.BootTimeout != 3*time.Minute {
		t.Errorf("BootTimeout = %v, want 3m", cfg.Sandbox.BootTimeout)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previewd.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLY_API_TOKEN", "fo1_test")
	t.Setenv("PREVIEWD_REGION", "syd")
	t.Setenv("PREVIEWD_BOOT_TIMEOUT", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FlyAPIToken != "fo1_test" {
		t.Errorf("FlyAPIToken = %q, want fo1_test", cfg.FlyAPIToken)
	}
	if cfg.Sandbox.Region != "syd" {
		t.Errorf("Region = %q, want syd", cfg.Sandbox.Region)
	}
	if cfg.Sandbox.BootTimeout != 90*time.Second {
		t.Errorf("BootTimeout = %v, want 90s", cfg.Sandbox.BootTimeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previewd.yaml")
	if err := os.WriteFile(path, []byte("sandbox:\n  ram_mb: -1\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for negative ram_mb")
	}
}
