package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/reservation-sync/internal/config"
)

// tenantBucket refills continuously at ARGV[3] tokens per millisecond up
// to ARGV[2].  It returns {allowed, whole tokens left, wait in ms}.
var tenantBucket = redis.NewScript(`
    local now = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local per_ms = tonumber(ARGV[3])
    local ttl_ms = tonumber(ARGV[4])

    local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
    local tokens = tonumber(b[1]) or capacity
    local ts = tonumber(b[2]) or now
    if now > ts then
        tokens = math.min(capacity, tokens + (now - ts) * per_ms)
        ts = now
    end

    local allowed = 0
    local wait = 0
    if tokens >= 1 then
        allowed = 1
        tokens = tokens - 1
    else
        wait = math.ceil((1 - tokens) / per_ms)
    end
    redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', ts)
    redis.call('PEXPIRE', KEYS[1], ttl_ms)
    return { allowed, math.floor(tokens), wait }
`)

// bucketReply is the decoded answer of tenantBucket.
type bucketReply struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// NewTokenBucket limits the reservation API per tenant.  Each tenant gets
// its own Redis bucket (per route by default) sized by cfg.Capacity or by
// its entry in cfg.TenantCapacity.  Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            tenant := TenantID(c)
            capacity := cfg.CapacityFor(tenant)
            key := buildRateKey(cfg, c)

            res, err := take(c.Request().Context(), rdb, key, capacity, cfg, time.Now())
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("ratelimit: tenant=%s key=%s: %v", tenant, key, err)
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if res.Allowed {
                return next(c)
            }
            secs := int(math.Ceil(res.RetryAfter.Seconds()))
            h.Set("Retry-After", strconv.Itoa(secs))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "rate limit exceeded for tenant",
                "retry_after": secs,
            })
        }
    }
}

func take(ctx context.Context, rdb *redis.Client, key string, capacity int, cfg config.RateLimitConfig, now time.Time) (bucketReply, error) {
    perMs := float64(cfg.RefillTokens) / (float64(cfg.RefillInterval) / float64(time.Millisecond))
    vals, err := tenantBucket.Run(ctx, rdb, []string{key},
        now.UnixMilli(),
        capacity,
        strconv.FormatFloat(perMs, 'f', -1, 64),
        cfg.TTL.Milliseconds(),
    ).Result()
    if err != nil {
        return bucketReply{}, err
    }
    return parseBucketReply(vals)
}

func parseBucketReply(vals any) (bucketReply, error) {
    arr, ok := vals.([]any)
    if !ok || len(arr) != 3 {
        return bucketReply{}, fmt.Errorf("unexpected bucket reply %#v", vals)
    }
    nums := make([]int64, 3)
    for i, v := range arr {
        n, ok := v.(int64)
        if !ok {
            return bucketReply{}, fmt.Errorf("unexpected bucket field %d: %#v", i, v)
        }
        nums[i] = n
    }
    return bucketReply{
        Allowed:    nums[0] == 1,
        Remaining:  nums[1],
        RetryAfter: time.Duration(nums[2]) * time.Millisecond,
    }, nil
}

// buildRateKey scopes the bucket to the caller's tenant.  Strategies:
// "tenant" shares one bucket across routes, "tenant_ip" splits a tenant
// by client address, anything else splits it by route.  Requests without
// a tenant fall back to their IP.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    tenant := TenantID(c)
    if tenant == "" {
        ip := c.RealIP()
        if ip == "" {
            ip = "unknown"
        }
        return strings.Join([]string{cfg.Prefix, "anon", ip}, ":")
    }
    parts := []string{cfg.Prefix, "tenant", tenant}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "tenant":
    case "tenant_ip":
        parts = append(parts, "ip", c.RealIP())
    default:
        parts = append(parts, "route", c.Request().Method+" "+c.Path())
    }
    return strings.Join(parts, ":")
}
