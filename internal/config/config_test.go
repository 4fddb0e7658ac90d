package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-tradeops/control-plane/internal/config"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.TickPeriodSeconds != 60 {
		t.Fatalf("expected default tick period 60, got %d", cfg.Scheduler.TickPeriodSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
scheduler:
  tick_period_seconds: 30
  worker_pool_size: 4
executor:
  retry:
    max_attempts: 6
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.TickPeriodSeconds != 30 {
		t.Fatalf("expected tick period 30, got %d", cfg.Scheduler.TickPeriodSeconds)
	}
	if cfg.Scheduler.WorkerPoolSize != 4 {
		t.Fatalf("expected worker pool size 4, got %d", cfg.Scheduler.WorkerPoolSize)
	}
	if cfg.Executor.Retry.MaxAttempts != 6 {
		t.Fatalf("expected max attempts 6, got %d", cfg.Executor.Retry.MaxAttempts)
	}
	// Untouched sections still carry defaults.
	if cfg.Risk.DefaultPositionSizePct != 0.02 {
		t.Fatalf("expected default position size pct 0.02, got %v", cfg.Risk.DefaultPositionSizePct)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Risk.DefaultPositionSizePct = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for zero position size pct")
	}
}
