package config

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the catalog cache and
// the tenant rate limiter.
type RedisConfig struct {
    // URL, when set, wins over the discrete fields (redis:// or rediss://).
    URL      string
    Addr     string
    Password string
    DB       int
    TLS      bool
    // PingTimeout bounds the startup reachability check.
    PingTimeout time.Duration
}

// LoadRedisConfig reads REDIS_URL, or REDIS_HOST/REDIS_PORT (falling back
// to REDIS_ADDR), REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    tlsEnv := os.Getenv("REDIS_TLS")
    return RedisConfig{
        URL:         os.Getenv("REDIS_URL"),
        Addr:        addr,
        Password:    os.Getenv("REDIS_PASSWORD"),
        DB:          envInt("REDIS_DB", 0),
        TLS:         strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
        PingTimeout: envDur("REDIS_PING_TIMEOUT", 2*time.Second),
    }
}

// Options converts the config into client options.
func (c RedisConfig) Options() (*redis.Options, error) {
    if c.URL != "" {
        opts, err := redis.ParseURL(c.URL)
        if err != nil {
            return nil, fmt.Errorf("parse REDIS_URL: %w", err)
        }
        return opts, nil
    }
    opts := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
    if c.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects using LoadRedisConfig.  It returns nil when the
// server cannot be reached; callers then read catalogs straight from the
// database and skip rate limiting.
func NewRedisClient() *redis.Client {
    cfg := LoadRedisConfig()
    opts, err := cfg.Options()
    if err != nil {
        return nil
    }
    client := redis.NewClient(opts)
    ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
