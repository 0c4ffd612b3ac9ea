package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("SANDBOXCORE_MODE")
	os.Unsetenv("SANDBOXCORE_MAX_RECOVERY_ATTEMPTS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("expected mode server, got %s", cfg.Mode)
	}
	if cfg.MaxRecoveryAttempts != 3 {
		t.Errorf("expected default max recovery attempts 3, got %d", cfg.MaxRecoveryAttempts)
	}
	if cfg.PortRangeStart != 18765 {
		t.Errorf("expected default port range start 18765, got %d", cfg.PortRangeStart)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("SANDBOXCORE_MODE", "cli")
	os.Setenv("SANDBOXCORE_MAX_RECOVERY_ATTEMPTS", "5")
	defer func() {
		os.Unsetenv("SANDBOXCORE_MODE")
		os.Unsetenv("SANDBOXCORE_MAX_RECOVERY_ATTEMPTS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Mode != "cli" {
		t.Errorf("expected mode cli, got %s", cfg.Mode)
	}
	if cfg.MaxRecoveryAttempts != 5 {
		t.Errorf("expected max recovery attempts 5, got %d", cfg.MaxRecoveryAttempts)
	}
}

func TestLoadDesktopEnabledBoolParsing(t *testing.T) {
	os.Setenv("SANDBOXCORE_DEFAULT_DESKTOP_ENABLED", "true")
	defer os.Unsetenv("SANDBOXCORE_DEFAULT_DESKTOP_ENABLED")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.DefaultDesktopEnabled {
		t.Error("expected desktop enabled true")
	}
}
