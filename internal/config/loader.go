// Package config provides configuration management for the backtest-pilot service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variables override file values
	v.SetEnvPrefix("BACKTEST_PILOT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults applies reasonable defaults for optional and tunable fields
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backtest-pilot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("api.address", ":8080")
	v.SetDefault("api.read_timeout_seconds", 15)
	v.SetDefault("api.write_timeout_seconds", 30)

	v.SetDefault("queue.historical_workers", 4)
	v.SetDefault("queue.replay_workers", 2)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.backoff_base_seconds", 2)
	v.SetDefault("queue.drain_poll_seconds", 2)
	v.SetDefault("queue.drain_timeout_seconds", 60)
	v.SetDefault("queue.worker_url", "http://localhost:9100/execute")

	v.SetDefault("backtest.max_checkpoint_age_hours", 24)
	v.SetDefault("backtest.default_list_limit", 50)
	v.SetDefault("backtest.max_list_limit", 200)
	v.SetDefault("backtest.low_integrity_threshold", 80)
	v.SetDefault("backtest.dataset_cache_ttl_minutes", 30)

	v.SetDefault("scheduler.cron_expression", "0 2 * * *")
	v.SetDefault("scheduler.dedup_window_hours", 24)
	v.SetDefault("scheduler.stagger_seconds", 30)
	v.SetDefault("scheduler.min_dataset_integrity", 70)
	v.SetDefault("scheduler.standard_capital", 10000)
	v.SetDefault("scheduler.default_risk_level", 3)
	v.SetDefault("scheduler.orchestration_workers", 1)

	v.SetDefault("watchdog.interval_minutes", 15)
	v.SetDefault("watchdog.historical_stale_minutes", 90)
	v.SetDefault("watchdog.replay_stale_minutes", 120)

	v.SetDefault("promotion.pool_capacity", 30)

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.rate_limit", 10.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("health.port", "8081")
}

// GetDatabaseDSN builds a connection string from the database configuration
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
