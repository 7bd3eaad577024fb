package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig configures the per-tenant Redis token bucket placed in
// front of the reservation API.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    // KeyStrategy is "tenant", "tenant_ip" or "tenant_route" (default).
    KeyStrategy string
    Prefix      string
    Debug       bool
    // TenantCapacity overrides Capacity for individual tenants.
    TenantCapacity map[string]int
}

// CapacityFor returns the bucket size of tenant.
func (c RateLimitConfig) CapacityFor(tenant string) int {
    if n, ok := c.TenantCapacity[tenant]; ok && n > 0 {
        return n
    }
    return c.Capacity
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and clamps them to sane
// minimums.  RATE_LIMIT_TENANTS takes "tenant=capacity" pairs separated by
// commas.
func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "tenant_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
        TenantCapacity: parseTenantCapacity(os.Getenv("RATE_LIMIT_TENANTS")),
    }
    if def.Capacity < 1 {
        def.Capacity = 1
    }
    if def.RefillTokens < 1 {
        def.RefillTokens = 1
    }
    if def.RefillInterval <= 0 {
        def.RefillInterval = time.Second
    }
    if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
        def.TTL = minTTL
    }
    return def
}

// parseTenantCapacity skips malformed and non-positive entries.
func parseTenantCapacity(s string) map[string]int {
    out := map[string]int{}
    for _, pair := range strings.Split(s, ",") {
        tenant, n, ok := strings.Cut(strings.TrimSpace(pair), "=")
        if !ok || tenant == "" {
            continue
        }
        if v, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && v > 0 {
            out[strings.TrimSpace(tenant)] = v
        }
    }
    return out
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    v, err := strconv.ParseBool(os.Getenv(k))
    if err != nil {
        return d
    }
    return v
}

func envInt(k string, d int) int {
    if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
        return dur
    }
    return d
}
