// Package config loads and validates the server configuration from a YAML
// file and STEPFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence driver: "postgres" or "memory".
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	SeedActions bool   `yaml:"seed_actions"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WorkflowConfig controls the background sweeps and conflict handling.
type WorkflowConfig struct {
	EscalationSchedule   string `yaml:"escalation_schedule"`
	AutoApprovalSchedule string `yaml:"auto_approval_schedule"`
	ReevaluationWorkers  int    `yaml:"reevaluation_workers"`
	MaxConflictRetries   int    `yaml:"max_conflict_retries"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			MetricsPath:     "/metrics",
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:      "postgres",
			AutoMigrate: true,
			SeedActions: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Workflow: WorkflowConfig{
			EscalationSchedule:   "@every 5m",
			AutoApprovalSchedule: "@every 1m",
			ReevaluationWorkers:  2,
			MaxConflictRetries:   3,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		errs = append(errs, "server.metrics_path must start with /")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of postgres, memory", c.Store.Driver))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if _, err := cron.ParseStandard(c.Workflow.EscalationSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("workflow.escalation_schedule: %v", err))
	}
	if _, err := cron.ParseStandard(c.Workflow.AutoApprovalSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("workflow.auto_approval_schedule: %v", err))
	}
	if c.Workflow.ReevaluationWorkers < 0 {
		errs = append(errs, "workflow.reevaluation_workers cannot be negative")
	}
	if c.Workflow.MaxConflictRetries < 0 {
		errs = append(errs, "workflow.max_conflict_retries cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STEPFLOW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STEPFLOW_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("STEPFLOW_DATABASE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("STEPFLOW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("STEPFLOW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STEPFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
