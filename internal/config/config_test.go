package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8090" {
		t.Fatalf("port = %q, want 8090", cfg.Port)
	}
	if cfg.StartingCredits != 120 || cfg.GenerationCost != 20 {
		t.Fatalf("credit defaults = %d/%d, want 120/20", cfg.StartingCredits, cfg.GenerationCost)
	}
	if cfg.FailureRate != 0.10 {
		t.Fatalf("failureRate = %f, want 0.10", cfg.FailureRate)
	}
	if cfg.BaseIntervalMs != 1200 || cfg.JitterMs != 400 || cfg.StaggerMs != 300 {
		t.Fatalf("timing defaults = %d/%d/%d", cfg.BaseIntervalMs, cfg.JitterMs, cfg.StaggerMs)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("SONGFORGE_FAILURE_RATE", "0.25")
	t.Setenv("SONGFORGE_STARTING_CREDITS", "200")
	t.Setenv("REDIS_ADDR", "localhost:6390")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9001"
logLevel: "debug"
baseIntervalMs: 900
jitterMs: 200
staggerMs: 150
generationCost: 25
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9001" || cfg.LogLevel != "debug" {
		t.Fatalf("file values lost: %q %q", cfg.Port, cfg.LogLevel)
	}
	if cfg.BaseIntervalMs != 900 || cfg.JitterMs != 200 || cfg.StaggerMs != 150 {
		t.Fatalf("timing = %d/%d/%d", cfg.BaseIntervalMs, cfg.JitterMs, cfg.StaggerMs)
	}
	if cfg.FailureRate != 0.25 {
		t.Fatalf("failureRate = %f, want env override 0.25", cfg.FailureRate)
	}
	if cfg.StartingCredits != 200 {
		t.Fatalf("startingCredits = %d, want env override 200", cfg.StartingCredits)
	}
	if cfg.RedisAddr != "localhost:6390" {
		t.Fatalf("redisAddr = %q, want env override", cfg.RedisAddr)
	}
	if cfg.GenerationCost != 25 {
		t.Fatalf("generationCost = %d, want 25", cfg.GenerationCost)
	}
}

func TestValidateConfigRejectsBadFailureRate(t *testing.T) {
	cfg := defaults()
	cfg.FailureRate = 1.5
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for failureRate > 1")
	}
}

func TestValidateConfigRejectsJitterAboveInterval(t *testing.T) {
	cfg := defaults()
	cfg.BaseIntervalMs = 100
	cfg.JitterMs = 100
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for jitterMs >= baseIntervalMs")
	}
}

func TestValidateConfigRejectsCostAboveBalance(t *testing.T) {
	cfg := defaults()
	cfg.StartingCredits = 10
	cfg.GenerationCost = 20
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for generationCost > startingCredits")
	}
}
