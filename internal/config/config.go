// Package config resolves service configuration from environment variables
// with an optional YAML file override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service settings.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// NATSURL is the push-channel endpoint; empty disables the push stream.
	NATSURL string `yaml:"nats_url"`

	// Postgres settings for the remote audit store; empty host disables it.
	PGHost     string `yaml:"pg_host"`
	PGPort     string `yaml:"pg_port"`
	PGUser     string `yaml:"pg_user"`
	PGPassword string `yaml:"pg_password"`
	PGDatabase string `yaml:"pg_database"`

	// TenantID scopes the audit push subject.
	TenantID string `yaml:"tenant_id"`

	StateDir  string `yaml:"state_dir"`
	RulesFile string `yaml:"rules_file"`

	DedupWindow     time.Duration `yaml:"dedup_window"`
	RotationPeriod  time.Duration `yaml:"rotation_period"`
	EntryCap        int           `yaml:"entry_cap"`
	InterventionCap int           `yaml:"intervention_cap"`
}

// Load resolves configuration: defaults, then environment, then the YAML
// file named by RESILIENCE_CONFIG_FILE when present.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        getEnv("RESILIENCE_HTTP_ADDR", ":8090"),
		NATSURL:         getEnv("RESILIENCE_NATS_URL", ""),
		PGHost:          getEnv("RESILIENCE_PG_HOST", ""),
		PGPort:          getEnv("RESILIENCE_PG_PORT", "5432"),
		PGUser:          getEnv("RESILIENCE_PG_USER", "resilience"),
		PGPassword:      getEnv("RESILIENCE_PG_PASSWORD", ""),
		PGDatabase:      getEnv("RESILIENCE_PG_DATABASE", "audit"),
		TenantID:        getEnv("RESILIENCE_TENANT_ID", "default"),
		StateDir:        getEnv("RESILIENCE_STATE_DIR", "state"),
		RulesFile:       getEnv("RESILIENCE_RULES_FILE", ""),
		DedupWindow:     getEnvDuration("RESILIENCE_DEDUP_WINDOW", 5*time.Second),
		RotationPeriod:  getEnvDuration("RESILIENCE_ROTATION_PERIOD", 5*time.Minute),
		EntryCap:        getEnvInt("RESILIENCE_ENTRY_CAP", 50),
		InterventionCap: getEnvInt("RESILIENCE_INTERVENTION_CAP", 50),
	}

	if path := os.Getenv("RESILIENCE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return cfg, nil
}

// Subject returns the tenant-scoped audit push subject.
func (c Config) Subject() string {
	return "audit.interventions." + c.TenantID
}

// PostgresEnabled reports whether the remote audit store is configured.
func (c Config) PostgresEnabled() bool {
	return c.PGHost != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
