// Package config provides configuration management for the backtest-pilot service.
package config

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	API       APIConfig       `mapstructure:"api" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Backtest  BacktestConfig  `mapstructure:"backtest" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog" validate:"required"`
	Promotion PromotionConfig `mapstructure:"promotion" validate:"required"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password" validate:"required"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
}

// APIConfig represents the REST API server configuration
type APIConfig struct {
	Address      string `mapstructure:"address" validate:"required"`
	ReadTimeout  int    `mapstructure:"read_timeout_seconds" validate:"required,gt=0"`
	WriteTimeout int    `mapstructure:"write_timeout_seconds" validate:"required,gt=0"`
}

// QueueConfig represents execution queue configuration
type QueueConfig struct {
	HistoricalWorkers   int `mapstructure:"historical_workers" validate:"required,gt=0"`
	ReplayWorkers       int `mapstructure:"replay_workers" validate:"required,gt=0"`
	MaxAttempts         int `mapstructure:"max_attempts" validate:"required,gt=0"`
	BackoffBaseSeconds  int `mapstructure:"backoff_base_seconds" validate:"required,gt=0"`
	DrainPollSeconds    int `mapstructure:"drain_poll_seconds" validate:"required,gt=0"`
	DrainTimeoutSeconds int `mapstructure:"drain_timeout_seconds" validate:"required,gt=0"`

	// WorkerURL is where the simulation worker accepts execution jobs
	WorkerURL string `mapstructure:"worker_url" validate:"required,url"`
}

// BacktestConfig represents run lifecycle configuration
type BacktestConfig struct {
	MaxCheckpointAgeHours int     `mapstructure:"max_checkpoint_age_hours" validate:"required,gt=0"`
	DefaultListLimit      int     `mapstructure:"default_list_limit" validate:"required,gt=0,lte=200"`
	MaxListLimit          int     `mapstructure:"max_list_limit" validate:"required,gt=0,lte=200"`
	LowIntegrityThreshold float64 `mapstructure:"low_integrity_threshold" validate:"gte=0,lte=100"`
	DatasetCacheTTLMins   int     `mapstructure:"dataset_cache_ttl_minutes" validate:"required,gt=0"`
}

// SchedulerConfig represents orchestration scheduling configuration
type SchedulerConfig struct {
	CronExpression       string  `mapstructure:"cron_expression" validate:"required"`
	DedupWindowHours     int     `mapstructure:"dedup_window_hours" validate:"required,gt=0"`
	StaggerSeconds       int     `mapstructure:"stagger_seconds" validate:"required,gt=0"`
	MinDatasetIntegrity  float64 `mapstructure:"min_dataset_integrity" validate:"gte=0,lte=100"`
	StandardCapital      float64 `mapstructure:"standard_capital" validate:"required,gt=0"`
	DefaultRiskLevel     int     `mapstructure:"default_risk_level" validate:"required,min=1,max=5"`
	OrchestrationWorkers int     `mapstructure:"orchestration_workers" validate:"required,gt=0"`
}

// WatchdogConfig represents stale-run sweep configuration
type WatchdogConfig struct {
	IntervalMinutes        int `mapstructure:"interval_minutes" validate:"required,gt=0"`
	HistoricalStaleMinutes int `mapstructure:"historical_stale_minutes" validate:"required,gt=0"`
	ReplayStaleMinutes     int `mapstructure:"replay_stale_minutes" validate:"required,gt=0"`
}

// PromotionConfig represents risk-pool promotion configuration
type PromotionConfig struct {
	PoolCapacity int `mapstructure:"pool_capacity" validate:"required,gt=0"`
}

// StreamConfig represents best-effort status publication configuration
type StreamConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	WebhookURL string  `mapstructure:"webhook_url" validate:"omitempty,url"`
	AuthToken  string  `mapstructure:"auth_token"`
	RateLimit  float64 `mapstructure:"rate_limit"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// HealthConfig represents health server configuration
type HealthConfig struct {
	Port string `mapstructure:"port"`
}
