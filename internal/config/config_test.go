package config

import (
    "testing"
    "time"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
    cfg := LoadRateLimitConfig()
    if !cfg.Enabled || cfg.Capacity != 60 || cfg.RefillInterval != time.Second {
        t.Fatalf("unexpected defaults %+v", cfg)
    }
    if cfg.TTL < 5*cfg.RefillInterval {
        t.Fatalf("ttl %v shorter than five refill intervals", cfg.TTL)
    }
}

func TestLoadRateLimitConfigBurstOverride(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "5")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    cfg := LoadRateLimitConfig()
    if cfg.Capacity != 5 || cfg.RefillTokens != 1 || cfg.RefillInterval != 2*time.Second {
        t.Fatalf("unexpected config %+v", cfg)
    }
}

func TestLoadReadsOptionalValues(t *testing.T) {
    for k, v := range map[string]string{
        "APP_ENV": "test", "APP_PORT": "8080", "DB_USER": "root", "DB_HOST": "localhost",
        "DB_PORT": "3306", "DB_NAME": "hotel", "JWT_SECRET": "s3cret",
        "TAX_PERCENT": "12.5", "SWEEP_INTERVAL": "15m",
    } {
        t.Setenv(k, v)
    }
    cfg := Load()
    if cfg.TaxPercent != 12.5 || cfg.SweepInterval != 15*time.Minute {
        t.Fatalf("unexpected config %+v", cfg)
    }
    if cfg.PaymentCurrency != "usd" || cfg.NotificationQueue != "reservation.notifications" {
        t.Fatalf("defaults not applied: %+v", cfg)
    }
}

func TestEnvFloatFallsBackOnGarbage(t *testing.T) {
    t.Setenv("TAX_PERCENT", "ten")
    if got := envFloat("TAX_PERCENT", 10); got != 10 {
        t.Fatalf("envFloat = %v", got)
    }
}

func TestLoadCacheConfig(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head")
    t.Setenv("CACHE_ENABLED", "off")
    cfg := LoadCacheConfig()
    if cfg.Enabled || !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || cfg.Methods["POST"] {
        t.Fatalf("unexpected config %+v", cfg)
    }
    if cfg.TTL != 15*time.Second || cfg.Prefix != "hotel:cache" {
        t.Fatalf("defaults not applied: %+v", cfg)
    }
}
