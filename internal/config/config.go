// Package config loads the control plane's runtime configuration from a
// YAML file with environment-variable overrides, grounded on the pack's
// viper-based config loaders (SetConfigFile/SetEnvPrefix/AutomaticEnv,
// mapstructure-tagged struct, Validate method).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, mapping directly onto the §6
// configuration inputs.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig tunes the M1 tick loop.
type SchedulerConfig struct {
	TickPeriodSeconds       int `mapstructure:"tick_period_seconds"`
	WorkerPoolSize          int `mapstructure:"worker_pool_size"`
	MinCheckIntervalSeconds int `mapstructure:"min_check_interval_seconds"`
}

// RetryConfig mirrors pkg/utils.RetryConfig's tunables.
type RetryConfig struct {
	BaseMs      int     `mapstructure:"base_ms"`
	Factor      float64 `mapstructure:"factor"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

// ExecutorConfig tunes the Signal Executor.
type ExecutorConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

// OptimizerConfig tunes the T1 Strategy Optimiser.
type OptimizerConfig struct {
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
}

// RiskConfig holds defaults the Risk Manager falls back to.
type RiskConfig struct {
	DefaultPositionSizePct float64 `mapstructure:"default_position_size_pct"`
}

// LoggingConfig holds the logger settings. cmd/controlplane reads Level
// only; the logger it builds always uses console encoding, whatever
// Format says.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the documented defaults, used when no config file is
// present and no environment override applies.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{TickPeriodSeconds: 60, WorkerPoolSize: 8, MinCheckIntervalSeconds: 60},
		Executor:  ExecutorConfig{Retry: RetryConfig{BaseMs: 500, Factor: 2, MaxAttempts: 4}},
		Optimizer: OptimizerConfig{WorkerPoolSize: 8},
		Risk:      RiskConfig{DefaultPositionSizePct: 0.02},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads config from a YAML file, falling back to Default()'s
// values for anything the file and environment leave unset.
// CTRLPLANE_* environment variables override any field, e.g.
// CTRLPLANE_SCHEDULER_TICK_PERIOD_SECONDS.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("scheduler.tick_period_seconds", defaults.Scheduler.TickPeriodSeconds)
	v.SetDefault("scheduler.worker_pool_size", defaults.Scheduler.WorkerPoolSize)
	v.SetDefault("scheduler.min_check_interval_seconds", defaults.Scheduler.MinCheckIntervalSeconds)
	v.SetDefault("executor.retry.base_ms", defaults.Executor.Retry.BaseMs)
	v.SetDefault("executor.retry.factor", defaults.Executor.Retry.Factor)
	v.SetDefault("executor.retry.max_attempts", defaults.Executor.Retry.MaxAttempts)
	v.SetDefault("optimizer.worker_pool_size", defaults.Optimizer.WorkerPoolSize)
	v.SetDefault("risk.default_position_size_pct", defaults.Risk.DefaultPositionSizePct)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetEnvPrefix("CTRLPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks value ranges the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.Scheduler.TickPeriodSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_period_seconds must be > 0")
	}
	if c.Scheduler.WorkerPoolSize <= 0 {
		return fmt.Errorf("scheduler.worker_pool_size must be > 0")
	}
	if c.Scheduler.MinCheckIntervalSeconds < 0 {
		return fmt.Errorf("scheduler.min_check_interval_seconds must be >= 0")
	}
	if c.Executor.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("executor.retry.max_attempts must be > 0")
	}
	if c.Executor.Retry.Factor < 1 {
		return fmt.Errorf("executor.retry.factor must be >= 1")
	}
	if c.Optimizer.WorkerPoolSize <= 0 {
		return fmt.Errorf("optimizer.worker_pool_size must be > 0")
	}
	if c.Risk.DefaultPositionSizePct <= 0 || c.Risk.DefaultPositionSizePct > 1 {
		return fmt.Errorf("risk.default_position_size_pct must be in (0, 1]")
	}
	return nil
}

// TickPeriod returns the configured scheduler tick period as a Duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Scheduler.TickPeriodSeconds) * time.Second
}

// MinCheckInterval returns the configured scheduler cadence floor as a Duration.
func (c *Config) MinCheckInterval() time.Duration {
	return time.Duration(c.Scheduler.MinCheckIntervalSeconds) * time.Second
}
