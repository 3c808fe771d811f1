package config

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// SOVEREIGN CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.StoragePath == "" {
		t.Error("expected a non-empty default storage path")
	}
	if cfg.TickRateSecs != 5 {
		t.Errorf("expected TickRateSecs=5, got %d", cfg.TickRateSecs)
	}
	if len(cfg.ProtectedSkills) == 0 {
		t.Error("expected a non-empty default protected skill list")
	}
}

func TestConfig_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("audit_start_hour: 20\nhumanity_ratio: 0.3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AuditStartHour != 20 {
		t.Errorf("expected AuditStartHour=20, got %d", loaded.AuditStartHour)
	}
	if loaded.HumanityRatio != 0.3 {
		t.Errorf("expected HumanityRatio=0.3, got %v", loaded.HumanityRatio)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PAGI_FIREWALL_STRICT_MODE", "true")
	t.Setenv("PAGI_TICK_RATE_SECS", "10")
	t.Setenv("PAGI_AUDIT_START_HOUR", "9")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if !cfg.FirewallStrictMode {
		t.Error("expected FirewallStrictMode=true from env override")
	}
	if cfg.TickRateSecs != 10 {
		t.Errorf("expected TickRateSecs=10, got %d", cfg.TickRateSecs)
	}
	if cfg.AuditStartHour != 9 {
		t.Errorf("expected AuditStartHour=9, got %d", cfg.AuditStartHour)
	}
}

func TestConfig_TickIntervalTracksTickRateSecs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickRateSecs = 3
	if cfg.TickInterval().Seconds() != 3 {
		t.Errorf("expected 3s tick interval, got %v", cfg.TickInterval())
	}
}

func TestConfig_KB08LoggingFull(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.KB08LoggingFull() {
		t.Error("expected default kb08 logging level to be full")
	}
	cfg.KB08LoggingLevel = "minimal"
	if cfg.KB08LoggingFull() {
		t.Error("expected minimal logging level to report non-full")
	}
}

