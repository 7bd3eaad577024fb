package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/normalize"
)

// LoadInitial fetches [from, ∞) for the current window and replaces the
// cache content.  The window is initialized first when the cache has
// none.  Calling it again is a fresh load, not a merge; results of loads
// started before it are discarded.
func (s *Syncer) LoadInitial(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.cache.Ready() {
		s.cache.Initialize(s.clock.Now())
	}
	s.epoch++
	ep := s.epoch
	from := s.cache.Window().From
	s.loading = true
	s.mu.Unlock()

	records, err := s.fetch(ctx, from, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ep != s.epoch {
		return nil
	}
	s.loading = false
	if err != nil {
		s.lastErr = err
		s.log.Error("initial load failed", "error", err)
		return err
	}
	s.lastErr = nil
	s.cache.Reset(records)
	s.log.Debug("initial load", "from", from.Format(time.DateOnly), "count", len(records))
	return nil
}

// LoadMoreHistory extends the window one month back: it fetches
// [newFrom, oldFrom) and prepends the records it did not already hold.
// A failed fetch leaves the window untouched.  It returns ErrLoadInFlight
// when another history load is running.
func (s *Syncer) LoadMoreHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loadingMore {
		s.mu.Unlock()
		return ErrLoadInFlight
	}
	if !s.cache.Ready() {
		s.cache.Initialize(s.clock.Now())
	}
	s.loadingMore = true
	ep := s.epoch
	oldFrom := s.cache.Window().From
	newFrom := monthBefore(oldFrom)
	s.mu.Unlock()

	records, err := s.fetch(ctx, newFrom, &oldFrom)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	if ep != s.epoch {
		return nil
	}
	if err != nil {
		s.lastErr = err
		s.log.Error("history load failed", "from", newFrom.Format(time.DateOnly), "error", err)
		return err
	}
	if !s.cache.Window().From.Equal(oldFrom) {
		// the window moved while we were fetching; the records no longer
		// line up with the bound
		return nil
	}
	if err := s.cache.ReplaceWindow(newFrom, records); err != nil {
		return err
	}
	s.lastErr = nil
	s.log.Debug("history loaded", "from", newFrom.Format(time.DateOnly), "count", len(records))
	return nil
}

// LoadMoreHistoryDebounced schedules LoadMoreHistory to run once the
// triggers have been quiet for the debounce delay.  The latest trigger wins.
func (s *Syncer) LoadMoreHistoryDebounced() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.debouncer.Trigger()
}

// CheckAndMaybeLoadMore triggers the debounced history load when visible
// is within the edge buffer of the window's lower bound.  It reports
// whether a load was triggered.
func (s *Syncer) CheckAndMaybeLoadMore(visible time.Time) bool {
	s.mu.Lock()
	if s.closed || !s.cache.Ready() {
		s.mu.Unlock()
		return false
	}
	edge := s.cache.Window().From.Add(s.cfg.EdgeBuffer)
	s.mu.Unlock()

	if visible.After(edge) {
		return false
	}
	s.LoadMoreHistoryDebounced()
	return true
}

// LoadMoreReservations is the caller-facing history trigger.  It is
// debounced like LoadMoreHistoryDebounced.
func (s *Syncer) LoadMoreReservations() { s.LoadMoreHistoryDebounced() }

// CheckAndLoadMore is the caller-facing edge check.
func (s *Syncer) CheckAndLoadMore(visible time.Time) bool { return s.CheckAndMaybeLoadMore(visible) }

// Refetch re-reads [from, ∞) for the current window and replaces that part
// of the cache.  Records older than from, merged by a concurrent history
// load, are kept.
func (s *Syncer) Refetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.cache.Ready() {
		s.cache.Initialize(s.clock.Now())
	}
	ep := s.epoch
	from := s.cache.Window().From
	s.mu.Unlock()

	records, err := s.fetch(ctx, from, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ep != s.epoch {
		return nil
	}
	if err != nil {
		s.lastErr = err
		return err
	}
	s.lastErr = nil
	var merged []model.Reservation
	for _, r := range s.cache.Snapshot() {
		if !r.Date.IsZero() && r.Date.Before(from) {
			merged = append(merged, r)
		}
	}
	s.cache.Reset(append(merged, records...))
	return nil
}

// refetchLimited runs Refetch unless one ran within the minimum interval.
func (s *Syncer) refetchLimited() {
	if !s.limiter.Allow() {
		s.log.Debug("refetch skipped by rate limit")
		return
	}
	if err := s.Refetch(s.ctx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
		s.log.Warn("refetch failed", "error", err)
	}
}

func (s *Syncer) debouncedLoadMore() {
	err := s.LoadMoreHistory(s.ctx)
	switch {
	case err == nil, errors.Is(err, ErrLoadInFlight), errors.Is(err, ErrClosed):
	default:
		s.log.Warn("debounced history load failed", "error", err)
	}
}

// monthBefore steps t back one calendar month, clamping the day to the
// end of the shorter month: 2025-03-31 gives 2025-02-28.
func monthBefore(t time.Time) time.Time {
	y, m, d := t.Date()
	last := time.Date(y, m, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > last {
		d = last
	}
	return time.Date(y, m-1, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func (s *Syncer) fetch(ctx context.Context, from time.Time, to *time.Time) ([]model.Reservation, error) {
	raws, err := s.src.Query(ctx, s.tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	cat := s.services(ctx)
	out := make([]model.Reservation, 0, len(raws))
	for _, raw := range raws {
		if raw.TenantID == "" {
			raw.TenantID = s.tenantID
		}
		out = append(out, normalize.Reservation(raw, cat))
	}
	return out, nil
}
