package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orbitalcx/convoy/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr == "" || cfg.Redis.Addr == "" {
		t.Fatalf("expected non-empty defaults, got %+v", cfg)
	}
	if cfg.DebounceWindow().Seconds() != 5 {
		t.Fatalf("expected default debounce window of 5s, got %v", cfg.DebounceWindow())
	}
	if cfg.CreditRateFor("tenant-x") != 0.000002 {
		t.Fatalf("expected default credit rate, got %v", cfg.CreditRateFor("tenant-x"))
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoy.yaml")
	yamlBody := `
bind_addr: "0.0.0.0:9090"
log_level: "debug"
postgres:
  dsn: "postgres://x"
redis:
  addr: "redis:6379"
debounce:
  window_seconds: 10
credits:
  default_rate_per_token: 0.00001
  tenant_rate_overrides:
    tenant-a: 0.00003
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9090" {
		t.Fatalf("expected bind_addr from file, got %q", cfg.BindAddr)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("expected redis addr from file, got %q", cfg.Redis.Addr)
	}
	if cfg.DebounceWindow().Seconds() != 10 {
		t.Fatalf("expected debounce window of 10s, got %v", cfg.DebounceWindow())
	}
	if cfg.CreditRateFor("tenant-a") != 0.00003 {
		t.Fatalf("expected tenant-a override, got %v", cfg.CreditRateFor("tenant-a"))
	}
	if cfg.CreditRateFor("tenant-b") != 0.00001 {
		t.Fatalf("expected tenant-b to fall through to default_rate_per_token, got %v", cfg.CreditRateFor("tenant-b"))
	}
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoy.yaml")
	if err := os.WriteFile(path, []byte("bind_addr: \"0.0.0.0:9090\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONVOY_BIND_ADDR", "0.0.0.0:7070")
	t.Setenv("CONVOY_DEBOUNCE_WINDOW_SECONDS", "20")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:7070" {
		t.Fatalf("expected env override to win, got %q", cfg.BindAddr)
	}
	if cfg.DebounceWindow().Seconds() != 20 {
		t.Fatalf("expected env-overridden debounce window of 20s, got %v", cfg.DebounceWindow())
	}
}

func TestLoadNormalizesInvalidSampleRate(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Fatalf("expected default sample rate of 1.0, got %v", cfg.Tracing.SampleRate)
	}
}

func TestPathRespectsEnvOverride(t *testing.T) {
	t.Setenv("CONVOY_CONFIG", "/etc/convoy/custom.yaml")
	if got := config.Path(); got != "/etc/convoy/custom.yaml" {
		t.Fatalf("expected CONVOY_CONFIG override, got %q", got)
	}
}
