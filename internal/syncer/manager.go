package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns one Syncer per tenant.  Syncers are created on first use
// and started in the background.
type Manager struct {
	opts Options
	log  *slog.Logger
	ctx  context.Context

	mu      sync.Mutex
	syncers map[string]*Syncer
	closed  bool
}

// NewManager returns a Manager whose Syncers share opts.  ctx bounds the
// background start of each Syncer.
func NewManager(ctx context.Context, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{opts: opts, log: opts.Logger, ctx: ctx, syncers: make(map[string]*Syncer)}
}

// Get returns the tenant's Syncer, creating and starting it if needed.
// It returns nil once the Manager is closed.
func (m *Manager) Get(tenantID string) *Syncer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if s, ok := m.syncers[tenantID]; ok {
		return s
	}
	s := New(tenantID, m.opts)
	s.markLoading()
	m.syncers[tenantID] = s
	go func() {
		if err := s.Start(m.ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.log.Warn("tenant sync start failed", "tenant", tenantID, "error", err)
		}
	}()
	return s
}

// Tenants lists the tenants with a live Syncer.
func (m *Manager) Tenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.syncers))
	for t := range m.syncers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close tears every Syncer down.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	syncers := m.syncers
	m.syncers = map[string]*Syncer{}
	m.mu.Unlock()

	var errs []error
	for _, s := range syncers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
