package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSyncConfigDefaults(t *testing.T) {
	cfg := LoadSyncConfig()
	if cfg != DefaultSyncConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Debounce != 300*time.Millisecond || cfg.MaxRetries != 5 || cfg.RefetchMinInterval != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadSyncConfigOverrides(t *testing.T) {
	t.Setenv("SYNC_DEBOUNCE", "50ms")
	t.Setenv("SYNC_MAX_RETRIES", "-2")
	t.Setenv("SYNC_RETRY_MAX", "1ms")
	cfg := LoadSyncConfig()
	if cfg.Debounce != 50*time.Millisecond {
		t.Fatalf("debounce %v", cfg.Debounce)
	}
	if cfg.MaxRetries != 0 {
		t.Fatalf("negative retries should clamp to 0, got %d", cfg.MaxRetries)
	}
	if cfg.RetryMax != cfg.RetryBase {
		t.Fatalf("retry max should not be below base: %+v", cfg)
	}
}

func TestLoadFeedConfigAlias(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	cfg := LoadFeedConfig()
	if cfg.AMQPURL != "amqp://u:p@mq:5672/" || cfg.Driver != FeedAMQP {
		t.Fatalf("unexpected feed config %+v", cfg)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SYNC_TEST_A=file\nSYNC_TEST_B=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SYNC_TEST_A", "env")
	t.Setenv("SYNC_TEST_B", "")
	os.Unsetenv("SYNC_TEST_B")
	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	if got := os.Getenv("SYNC_TEST_A"); got != "env" {
		t.Fatalf("existing variable overwritten: %q", got)
	}
	if got := os.Getenv("SYNC_TEST_B"); got != "file" {
		t.Fatalf("variable not loaded from file: %q", got)
	}
}

func TestRateLimitDefaultsKeyByTenant(t *testing.T) {
	cfg := LoadRateLimitConfig()
	if cfg.KeyStrategy != "tenant_route" || cfg.Capacity < 1 {
		t.Fatalf("unexpected rate limit config %+v", cfg)
	}
}

func TestRateLimitTenantOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "30")
	t.Setenv("RATE_LIMIT_TENANTS", "big=300, bad=x,=5,zero=0")
	cfg := LoadRateLimitConfig()
	if got := cfg.CapacityFor("big"); got != 300 {
		t.Fatalf("override ignored: %d", got)
	}
	for _, tenant := range []string{"bad", "zero", "other"} {
		if got := cfg.CapacityFor(tenant); got != 30 {
			t.Fatalf("%s: expected default capacity, got %d", tenant, got)
		}
	}
}

func TestRedisConfigPrefersURL(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	cfg := LoadRedisConfig()
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.TLSConfig != nil {
		t.Fatalf("unexpected discrete options %+v", opts)
	}

	t.Setenv("REDIS_URL", "rediss://:pw@redis.example:6390/4")
	opts, err = LoadRedisConfig().Options()
	if err != nil {
		t.Fatalf("options from url: %v", err)
	}
	if opts.Addr != "redis.example:6390" || opts.DB != 4 || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected url options %+v", opts)
	}

	t.Setenv("REDIS_URL", "http://nope")
	if _, err := LoadRedisConfig().Options(); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
