// Package syncer keeps a tenant's windowed reservation cache consistent
// with the remote store.  A Syncer loads history on demand, applies the
// realtime change feed, shields fresh local writes from stale echoes and
// supervises the feed connection.
//
// All cache mutations happen under one mutex per Syncer.  Remote I/O
// never runs while it is held.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/reservation-sync/internal/cache"
	"github.com/iliyamo/reservation-sync/internal/clock"
	"github.com/iliyamo/reservation-sync/internal/config"
	"github.com/iliyamo/reservation-sync/internal/debounce"
	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/normalize"
	"github.com/iliyamo/reservation-sync/internal/notify"
	"github.com/iliyamo/reservation-sync/internal/queue"
	"github.com/iliyamo/reservation-sync/internal/suppress"
)

var (
	// ErrLoadInFlight is returned by LoadMoreHistory when another history
	// load is still running.  The call is dropped, not queued.
	ErrLoadInFlight = errors.New("history load already in flight")
	// ErrClosed is returned by operations on a closed Syncer.
	ErrClosed = errors.New("syncer closed")
)

// Source is the remote reservation store.
type Source interface {
	// Query returns reservations dated in [from, to); a nil to is open-ended.
	Query(ctx context.Context, tenantID string, from time.Time, to *time.Time) ([]model.RawReservation, error)
	// QueryByID returns nil when the reservation does not exist.
	QueryByID(ctx context.Context, tenantID, id string) (*model.RawReservation, error)
}

// Catalog resolves the live service catalog for a tenant.
type Catalog interface {
	Services(ctx context.Context, tenantID string) (model.ServiceCatalog, error)
}

// catalogInvalidator is implemented by catalogs that keep their own cache.
type catalogInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Options wires a Syncer.  Source is required.  A nil Feed disables the
// realtime path; a nil Catalog normalizes without live service data.
type Options struct {
	Source   Source
	Catalog  Catalog
	Feed     queue.Feed
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	Config   config.SyncConfig
}

// State is a read-only view of a Syncer for collaborators.
type State struct {
	Reservations  []model.Reservation `json:"items"`
	IsLoading     bool                `json:"is_loading"`
	IsLoadingMore bool                `json:"is_loading_more"`
	Error         error               `json:"-"`
	IsConnected   bool                `json:"is_connected"`
	Window        model.Window        `json:"window"`
	Conn          ConnState           `json:"connection"`
}

// Syncer is the synchronization layer for one tenant.
type Syncer struct {
	tenantID string
	src      Source
	catalog  Catalog
	feed     queue.Feed
	notifier notify.Notifier
	clock    clock.Clock
	log      *slog.Logger
	cfg      config.SyncConfig
	policy   BackoffPolicy

	marks     *suppress.Marks
	debouncer *debounce.Debouncer
	limiter   *RateLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	cache       *cache.Cache
	epoch       uint64
	loading     bool
	loadingMore bool
	lastErr     error
	conn        ConnState
	sub         queue.Subscription
	subGen      uint64
	retry       clock.Timer
	notified    map[string]struct{}
	started     bool
	closed      bool
}

// New builds a Syncer for tenantID.  It does no I/O until Start or one of
// the load operations is called.
func New(tenantID string, opts Options) *Syncer {
	if opts.Source == nil {
		panic("syncer: nil Source")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config == (config.SyncConfig{}) {
		opts.Config = config.DefaultSyncConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		tenantID: tenantID,
		src:      opts.Source,
		catalog:  opts.Catalog,
		feed:     opts.Feed,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		log:      opts.Logger.With("tenant", tenantID),
		cfg:      opts.Config,
		policy:   PolicyFromConfig(opts.Config),
		marks:    suppress.New(opts.Clock, opts.Config.SuppressTTL),
		limiter:  NewRateLimiter(opts.Clock, opts.Config.RefetchMinInterval),
		ctx:      ctx,
		cancel:   cancel,
		cache:    cache.New(tenantID),
		notified: make(map[string]struct{}),
	}
	s.debouncer = debounce.New(opts.Clock, opts.Config.Debounce, s.debouncedLoadMore)
	return s
}

// Start performs the initial load and opens the change feed.  The feed is
// opened even when the load fails; the supervisor's refetches heal the
// cache.  Calling Start again is a no-op.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	err := s.LoadInitial(ctx)
	s.connect()
	return err
}

// Close tears the Syncer down: pending debounce and reconnect timers are
// cancelled and the subscription is closed.  No reconnection follows.
func (s *Syncer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.cancel()
	if sub != nil {
		if err := sub.Close(); err != nil {
			return fmt.Errorf("close subscription: %w", err)
		}
	}
	return nil
}

// State returns a snapshot of the cache and its flags.
func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Reservations:  s.cache.Snapshot(),
		IsLoading:     s.loading,
		IsLoadingMore: s.loadingMore,
		Error:         s.lastErr,
		IsConnected:   s.conn.Phase == PhaseConnected,
		Window:        s.cache.Window(),
		Conn:          s.conn,
	}
}

// Reservations returns the current snapshot.  Callers must not mutate it.
func (s *Syncer) Reservations() []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Snapshot()
}

// IsConnected reports realtime connectivity.
func (s *Syncer) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Phase == PhaseConnected
}

// UpdateReservationInCache applies a local write to the cache.
func (s *Syncer) UpdateReservationInCache(r model.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Upsert(r)
}

// RemoveReservationFromCache drops id from the cache.  Unknown ids are
// ignored.
func (s *Syncer) RemoveReservationFromCache(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
	delete(s.notified, id)
}

// MarkAsLocallyUpdated arms the suppression window for id.  Call it right
// after a local write commits.
func (s *Syncer) MarkAsLocallyUpdated(id string) { s.marks.Set(id) }

// InvalidateReservations discards the cache, resets the window and loads
// it again from scratch.  A cached service catalog is dropped as well so
// the reload normalizes against fresh service data.
func (s *Syncer) InvalidateReservations(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cache.Invalidate()
	s.mu.Unlock()
	if inv, ok := s.catalog.(catalogInvalidator); ok {
		if err := inv.Invalidate(ctx, s.tenantID); err != nil {
			s.log.Warn("service catalog invalidation failed", "error", err)
		}
	}
	return s.LoadInitial(ctx)
}

// Normalize maps raw through the tenant's live catalog.
func (s *Syncer) Normalize(ctx context.Context, raw model.RawReservation) model.Reservation {
	return normalize.Reservation(raw, s.services(ctx))
}

// markLoading flags a load that is about to start in the background so
// readers do not observe an idle, empty cache in between.
func (s *Syncer) markLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.loading = true
	}
}

func (s *Syncer) services(ctx context.Context) model.ServiceCatalog {
	if s.catalog == nil {
		return nil
	}
	cat, err := s.catalog.Services(ctx, s.tenantID)
	if err != nil {
		s.log.Warn("service catalog unavailable", "error", err)
		return nil
	}
	return cat
}
