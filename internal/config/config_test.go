package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected default HTTPAddr: %s", cfg.HTTPAddr)
	}
	if cfg.SeekingTTL != 300*time.Second {
		t.Errorf("unexpected default SeekingTTL: %v", cfg.SeekingTTL)
	}
	if cfg.RejectedTTL != 60*time.Second {
		t.Errorf("unexpected default RejectedTTL: %v", cfg.RejectedTTL)
	}
	if cfg.BaseAccelCost != 50 {
		t.Errorf("unexpected default BaseAccelCost: %d", cfg.BaseAccelCost)
	}
	if cfg.SampleSize != 20 || cfg.AcceleratedSampleSize != 50 {
		t.Errorf("unexpected sample sizes: %d / %d", cfg.SampleSize, cfg.AcceleratedSampleSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("RETRIGGER_AFTER", "15s")
	t.Setenv("BASE_ACCEL_COST", "100")
	t.Setenv("SAMPLE_SIZE", "not-a-number") // falls back to default

	cfg := Load()

	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("override not applied: %s", cfg.RedisAddr)
	}
	if cfg.RetriggerAfter != 15*time.Second {
		t.Errorf("duration override not applied: %v", cfg.RetriggerAfter)
	}
	if cfg.BaseAccelCost != 100 {
		t.Errorf("int override not applied: %d", cfg.BaseAccelCost)
	}
	if cfg.SampleSize != 20 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.SampleSize)
	}
}
