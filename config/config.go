// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr             string        `yaml:"addr"`
	DBPath           string        `yaml:"db"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	IndexFile        string        `yaml:"index_file"`
	IndexReload      time.Duration `yaml:"index_reload"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:             ":8080",
		DBPath:           "liquidador.db",
		LogLevel:         "info",
		LogFormat:        "json",
		IndexReload:      time.Hour,
		BatchConcurrency: 8,
		BatchTimeout:     30 * time.Second,
		CORSOrigins:      []string{"http://localhost:*", "http://127.0.0.1:*"},
	}
}

// Load reads LIQUIDADOR_CONFIG (a YAML file) when set, then applies the
// environment.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("LIQUIDADOR_CONFIG"); path != "" {
		var err error
		cfg, err = LoadFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	return applyEnv(cfg), nil
}

// LoadFile reads a YAML file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.Addr = getEnv("LIQUIDADOR_ADDR", cfg.Addr)
	cfg.DBPath = getEnv("LIQUIDADOR_DB", cfg.DBPath)
	cfg.LogLevel = getEnv("LIQUIDADOR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LIQUIDADOR_LOG_FORMAT", cfg.LogFormat)
	cfg.IndexFile = getEnv("LIQUIDADOR_INDEX_FILE", cfg.IndexFile)
	cfg.IndexReload = getEnvDuration("LIQUIDADOR_INDEX_RELOAD", cfg.IndexReload)
	cfg.BatchConcurrency = getEnvInt("LIQUIDADOR_BATCH_CONCURRENCY", cfg.BatchConcurrency)
	cfg.BatchTimeout = getEnvDuration("LIQUIDADOR_BATCH_TIMEOUT", cfg.BatchTimeout)
	if origins := getEnv("LIQUIDADOR_CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("LIQUIDADOR_ADDR must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("LIQUIDADOR_DB must not be empty")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LIQUIDADOR_LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("LIQUIDADOR_BATCH_CONCURRENCY must be positive")
	}
	if c.IndexFile != "" && c.IndexReload <= 0 {
		return fmt.Errorf("LIQUIDADOR_INDEX_RELOAD must be positive when LIQUIDADOR_INDEX_FILE is set")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("LIQUIDADOR_BATCH_TIMEOUT must not be negative")
	}
	return nil
}
