package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("ASTRO_TEST_KEY", "sk-from-env")

	path := writeConfig(t, `{
		"server": {"port": 9000},
		"providers": [
			{"id": "claude", "type": "anthropic", "api_key": "${ASTRO_TEST_KEY}"},
			{"id": "gpt", "type": "openai", "api_key": "${ASTRO_TEST_MISSING:fallback-key}"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("env substitution failed: %q", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[1].APIKey != "fallback-key" {
		t.Errorf("default substitution failed: %q", cfg.Providers[1].APIKey)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.LogLevel != "info" {
		t.Errorf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Orchestrator.PoolSize != 10 {
		t.Errorf("pool size default = %d", cfg.Orchestrator.PoolSize)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].AgentType != "general" {
		t.Errorf("agent default not applied: %+v", cfg.Agents)
	}
}

func TestLoadDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"gateway": {"retries": 2, "retry_delay_seconds": 0.5},
		"sandbox": {"command_timeout_seconds": 30}
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Gateway.RetryDelay.Duration(); got != 500*time.Millisecond {
		t.Errorf("retry delay = %s", got)
	}
	if got := cfg.Sandbox.CommandTimeout.Duration(); got != 30*time.Second {
		t.Errorf("command timeout = %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
