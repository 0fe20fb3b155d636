package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestLoadBookingConfigDefaults(t *testing.T) {
    t.Setenv("RESERVATION_WINDOW", "")
    t.Setenv("RESERVATION_SWEEP_SCHEDULE", "")
    t.Setenv("RESERVATION_CREATE_ATTEMPTS", "")

    cfg := LoadBookingConfig()
    assert.Equal(t, 2*time.Hour, cfg.Window)
    assert.Equal(t, "@every 1m", cfg.SweepSchedule)
    assert.Equal(t, 3, cfg.CreateAttempts)
}

func TestLoadBookingConfigOverrides(t *testing.T) {
    t.Setenv("RESERVATION_WINDOW", "90m")
    t.Setenv("RESERVATION_SWEEP_SCHEDULE", "*/5 * * * *")
    t.Setenv("RESERVATION_CREATE_ATTEMPTS", "0")

    cfg := LoadBookingConfig()
    assert.Equal(t, 90*time.Minute, cfg.Window)
    assert.Equal(t, "*/5 * * * *", cfg.SweepSchedule)
    assert.Equal(t, 1, cfg.CreateAttempts)

    t.Setenv("RESERVATION_WINDOW", "1ms")
    assert.Equal(t, time.Second, LoadBookingConfig().Window)

    t.Setenv("RESERVATION_WINDOW", "soon")
    assert.Equal(t, 2*time.Hour, LoadBookingConfig().Window)
}

func TestLoadMailConfig(t *testing.T) {
    t.Setenv("SMTP_HOST", "smtp.campus.edu")
    t.Setenv("SMTP_PORT", "2525")
    t.Setenv("SMTP_FROM", "")

    cfg := LoadMailConfig()
    assert.Equal(t, "smtp.campus.edu", cfg.Host)
    assert.Equal(t, 2525, cfg.Port)
    assert.Equal(t, "no-reply@campus-marketplace.local", cfg.From)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "10s")
    t.Setenv("RATE_LIMIT_TTL", "1s")
    t.Setenv("RATE_LIMIT_ENABLED", "off")

    cfg := LoadRateLimitConfig()
    assert.False(t, cfg.Enabled)
    assert.Equal(t, 1, cfg.Capacity)
    assert.Equal(t, 50*time.Second, cfg.TTL)
    assert.Equal(t, "rl:booking", cfg.Prefix)
}

func TestLoadCacheConfig(t *testing.T) {
    t.Setenv("CACHE_TTL", "")
    cfg := LoadCacheConfig()
    assert.True(t, cfg.Enabled)
    assert.Equal(t, 15*time.Second, cfg.TTL)
    assert.Equal(t, "cache:listing", cfg.Prefix)
}
