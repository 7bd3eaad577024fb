package config

import "time"

// SyncConfig carries the tunables of the per-tenant synchronizer.  The
// defaults reproduce the production behaviour: a 300ms load-more debounce,
// a 7 day edge buffer, 3s self-echo suppression, exponential reconnect
// from 1s capped at 30s for 5 attempts, then 30s polling with refetches
// spaced at least 10s apart.
type SyncConfig struct {
    Debounce           time.Duration
    EdgeBuffer         time.Duration
    SuppressTTL        time.Duration
    RetryBase          time.Duration
    RetryFactor        float64
    RetryMax           time.Duration
    MaxRetries         int
    PollInterval       time.Duration
    RefetchMinInterval time.Duration
}

// DefaultSyncConfig returns the production defaults without touching the
// environment.
func DefaultSyncConfig() SyncConfig {
    return SyncConfig{
        Debounce:           300 * time.Millisecond,
        EdgeBuffer:         7 * 24 * time.Hour,
        SuppressTTL:        3 * time.Second,
        RetryBase:          time.Second,
        RetryFactor:        1.5,
        RetryMax:           30 * time.Second,
        MaxRetries:         5,
        PollInterval:       30 * time.Second,
        RefetchMinInterval: 10 * time.Second,
    }
}

// LoadSyncConfig overlays SYNC_* environment variables on the defaults.
func LoadSyncConfig() SyncConfig {
    d := DefaultSyncConfig()
    cfg := SyncConfig{
        Debounce:           envDur("SYNC_DEBOUNCE", d.Debounce),
        EdgeBuffer:         envDur("SYNC_EDGE_BUFFER", d.EdgeBuffer),
        SuppressTTL:        envDur("SYNC_SUPPRESS_TTL", d.SuppressTTL),
        RetryBase:          envDur("SYNC_RETRY_BASE", d.RetryBase),
        RetryFactor:        d.RetryFactor,
        RetryMax:           envDur("SYNC_RETRY_MAX", d.RetryMax),
        MaxRetries:         envInt("SYNC_MAX_RETRIES", d.MaxRetries),
        PollInterval:       envDur("SYNC_POLL_INTERVAL", d.PollInterval),
        RefetchMinInterval: envDur("SYNC_REFETCH_MIN_INTERVAL", d.RefetchMinInterval),
    }
    if cfg.MaxRetries < 0 { cfg.MaxRetries = 0 }
    if cfg.RetryBase <= 0 { cfg.RetryBase = d.RetryBase }
    if cfg.RetryMax < cfg.RetryBase { cfg.RetryMax = cfg.RetryBase }
    if cfg.PollInterval <= 0 { cfg.PollInterval = d.PollInterval }
    return cfg
}
