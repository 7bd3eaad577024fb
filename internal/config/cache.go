package config

import (
    "os"
    "time"
)

// CacheConfig defines settings for the Redis-backed service catalog cache.
// When Enabled is false or no Redis client is configured, the catalog is
// read from the database on every hydrate.  TTL bounds how stale a catalog
// entry may get.  Prefix namespaces the keys.
type CacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled: getenv("CACHE_ENABLED", "true") == "true",
        TTL:     parseDur(getenv("CACHE_TTL", "5m")),
        Prefix:  getenv("CACHE_PREFIX", "catalog"),
    }
}

// Helper functions shared with the other loaders
func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseDur(s string) time.Duration {
    d, err := time.ParseDuration(s)
    if err != nil {
        return time.Second
    }
    return d
}
