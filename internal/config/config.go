// Package config loads runtime configuration from YAML with environment
// overrides. A missing config file is not an error; the defaults keep
// the demo runnable with zero setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	FailureRate     float64 `yaml:"failureRate"`
	BaseIntervalMs  int     `yaml:"baseIntervalMs"`
	JitterMs        int     `yaml:"jitterMs"`
	StaggerMs       int     `yaml:"staggerMs"`
	StartingCredits int     `yaml:"startingCredits"`
	GenerationCost  int     `yaml:"generationCost"`

	SubmitLimit         int `yaml:"submitLimit"`
	SubmitWindowSeconds int `yaml:"submitWindowSeconds"`

	TrustedProxies []string `yaml:"trustedProxies"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                "8090",
		LogLevel:            "info",
		FailureRate:         0.10,
		BaseIntervalMs:      1200,
		JitterMs:            400,
		StaggerMs:           300,
		StartingCredits:     120,
		GenerationCost:      20,
		SubmitLimit:         30,
		SubmitWindowSeconds: 60,
	}
}

// Load reads config from path (defaults to config.yaml). A missing file
// yields the built-in defaults; environment variables override either way.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Run on defaults.
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SONGFORGE_FAILURE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FailureRate = f
		}
	}
	if v := os.Getenv("SONGFORGE_BASE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BaseIntervalMs = n
		}
	}
	if v := os.Getenv("SONGFORGE_JITTER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JitterMs = n
		}
	}
	if v := os.Getenv("SONGFORGE_STAGGER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StaggerMs = n
		}
	}
	if v := os.Getenv("SONGFORGE_STARTING_CREDITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StartingCredits = n
		}
	}
	if v := os.Getenv("SONGFORGE_GENERATION_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerationCost = n
		}
	}
	if v := os.Getenv("SONGFORGE_SUBMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SubmitLimit = n
		}
	}
	if v := os.Getenv("SONGFORGE_SUBMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SubmitWindowSeconds = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return errors.New("config: failureRate must be between 0 and 1")
	}
	if cfg.BaseIntervalMs <= 0 {
		return errors.New("config: baseIntervalMs must be > 0")
	}
	if cfg.JitterMs < 0 {
		return errors.New("config: jitterMs must be >= 0")
	}
	if cfg.JitterMs >= cfg.BaseIntervalMs {
		return errors.New("config: jitterMs must be smaller than baseIntervalMs")
	}
	if cfg.StaggerMs < 0 {
		return errors.New("config: staggerMs must be >= 0")
	}
	if cfg.StartingCredits <= 0 {
		return errors.New("config: startingCredits must be > 0")
	}
	if cfg.GenerationCost <= 0 {
		return errors.New("config: generationCost must be > 0")
	}
	if cfg.GenerationCost > cfg.StartingCredits {
		return errors.New("config: generationCost must not exceed startingCredits")
	}
	if cfg.SubmitLimit <= 0 {
		return errors.New("config: submitLimit must be > 0")
	}
	if cfg.SubmitWindowSeconds <= 0 {
		return errors.New("config: submitWindowSeconds must be > 0")
	}
	return nil
}
