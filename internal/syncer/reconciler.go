package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/normalize"
	"github.com/iliyamo/reservation-sync/internal/queue"
)

// hydrateTimeout bounds the point refetch issued per feed event.
const hydrateTimeout = 10 * time.Second

// HandleEvent applies one change feed event to the cache.  Events of a
// subscription must be handled one at a time, in delivery order.
func (s *Syncer) HandleEvent(ev queue.ChangeEvent) {
	s.mu.Lock()
	gen := s.subGen
	s.mu.Unlock()
	s.handleEvent(gen, ev)
}

func (s *Syncer) handleEvent(gen uint64, ev queue.ChangeEvent) {
	id := ev.Record.ID
	if id == "" || (ev.TenantID != "" && ev.TenantID != s.tenantID) {
		return
	}
	switch ev.Type {
	case queue.EventDelete:
		// deletes skip the suppression check
		s.mu.Lock()
		if s.current(gen) {
			s.cache.Remove(id)
			delete(s.notified, id)
		}
		s.mu.Unlock()
	case queue.EventInsert:
		if s.beforeWindow(ev.Record) {
			s.log.Debug("insert outside window ignored", "id", id)
			return
		}
		r := s.hydrate(gen, ev)
		if r == nil || !r.FromCustomer() || s.notifier == nil || !s.firstNotice(id) {
			return
		}
		if err := s.notifier.NewCustomerReservation(s.ctx, *r); err != nil {
			s.log.Warn("customer reservation notification failed", "id", id, "error", err)
		}
	case queue.EventUpdate:
		if s.marks.Has(id) {
			s.log.Debug("update suppressed after local write", "id", id)
			return
		}
		s.hydrate(gen, ev)
	}
}

// hydrate is the single insert/update path: it reads the full record,
// normalizes it and upserts it.  A record that no longer exists is removed.
// Fetch failures drop the event.  It returns the reservation when the
// cache holds it afterwards, nil otherwise.
func (s *Syncer) hydrate(gen uint64, ev queue.ChangeEvent) *model.Reservation {
	id := ev.Record.ID
	ctx, cancel := context.WithTimeout(s.ctx, hydrateTimeout)
	defer cancel()

	raw, err := s.src.QueryByID(ctx, s.tenantID, id)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("point refetch failed, event dropped", "id", id, "type", ev.Type, "error", err)
		}
		return nil
	}
	var r *model.Reservation
	if raw != nil {
		if raw.TenantID == "" {
			raw.TenantID = s.tenantID
		}
		n := normalize.Reservation(*raw, s.services(ctx))
		r = &n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) || !s.cache.Ready() {
		return nil
	}
	if ev.Type == queue.EventUpdate && s.marks.Has(id) {
		return nil
	}
	if r == nil {
		s.cache.Remove(id)
		return nil
	}
	s.cache.Upsert(*r)
	if _, ok := s.cache.Get(id); !ok {
		return nil
	}
	return r
}

// firstNotice records that a customer alert goes out for id and reports
// whether none went out before.  Redelivered inserts and local creates
// echoed back both reach here more than once.
func (s *Syncer) firstNotice(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notified[id]; ok {
		return false
	}
	s.notified[id] = struct{}{}
	return true
}

// beforeWindow reports whether the partial record is dated before the
// loaded window.  Undated payloads are hydrated and filtered by the cache.
func (s *Syncer) beforeWindow(raw model.RawReservation) bool {
	d, ok := normalize.Date(raw.ReservationDate)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cache.Ready() {
		return false
	}
	return !s.cache.Window().Contains(d)
}

// current reports whether gen is the live subscription.  The caller holds mu.
func (s *Syncer) current(gen uint64) bool { return !s.closed && gen == s.subGen }
