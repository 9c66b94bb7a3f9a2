package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig defines settings for the fixed-window rate limiter that
// guards the login, exchange and import endpoints.  When Enabled is false or
// no Redis client is configured the limiter becomes a no-op.
type RateLimitConfig struct {
    Enabled  bool          // master switch
    Requests int           // allowed requests per window per client
    Window   time.Duration // window length
    Prefix   string        // Redis key namespace
}

// LoadRateLimitConfig reads environment variables to build a RateLimitConfig.
// Defaults allow 30 requests per minute per client IP and route.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:  envBool("RATE_LIMIT_ENABLED", true),
        Requests: envInt("RATE_LIMIT_REQUESTS", 30),
        Window:   envDur("RATE_LIMIT_WINDOW", time.Minute),
        Prefix:   strOr("RATE_LIMIT_PREFIX", "rl"),
    }
    if cfg.Requests < 1 {
        cfg.Requests = 1
    }
    if cfg.Window <= 0 {
        cfg.Window = time.Minute
    }
    return cfg
}

func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    if v := os.Getenv(k); v != "" {
        if n, err := strconv.Atoi(v); err == nil {
            return n
        }
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    if v := os.Getenv(k); v != "" {
        if dur, err := time.ParseDuration(v); err == nil {
            return dur
        }
    }
    return d
}
