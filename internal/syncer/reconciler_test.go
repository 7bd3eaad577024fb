package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/normalize"
	"github.com/iliyamo/reservation-sync/internal/queue"
)

func event(typ queue.EventType, r model.RawReservation) queue.ChangeEvent {
	return queue.ChangeEvent{EventID: "e-" + r.ID, TenantID: tenant, Type: typ, Record: r}
}

func loaded(t *testing.T, src *fakeSource) *harness {
	t.Helper()
	h := newHarness(t, src, nil)
	if err := h.s.LoadInitial(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return h
}

func TestOutOfWindowInsertIgnored(t *testing.T) {
	src := newSource(raw("old", "2024-05-01"))
	h := newHarness(t, src, nil)
	h.withWindow(day("2024-06-01"), raw("a", "2024-06-02"))

	h.s.HandleEvent(event(queue.EventInsert, raw("old", "2024-05-01")))

	if got := h.s.Reservations(); !sameIDs(got, "a") {
		t.Fatalf("snapshot changed: %v", ids(got))
	}
	if src.pointCalls() != 0 {
		t.Fatalf("out-of-window insert should not be hydrated")
	}
}

func TestInsertHydratesPartialPayload(t *testing.T) {
	full := raw("n", "2024-06-12")
	full.CustomerName = strp("Ada")
	full.Source = strp(model.SourceStaff)
	src := newSource()
	h := loaded(t, src)
	src.put(full)

	h.s.HandleEvent(event(queue.EventInsert, model.RawReservation{ID: "n"}))

	r, ok := getByID(h.s.Reservations(), "n")
	if !ok || r.CustomerName == nil || *r.CustomerName != "Ada" || r.Status != model.StatusPending {
		t.Fatalf("insert not hydrated: %+v", r)
	}
	if h.notify.count() != 0 {
		t.Fatalf("staff insert must not notify")
	}
}

func TestCustomerInsertNotifiesOnce(t *testing.T) {
	full := raw("n", "2024-06-12")
	full.Source = strp(model.SourceCustomer)
	src := newSource()
	h := loaded(t, src)
	src.put(full)

	h.s.HandleEvent(event(queue.EventInsert, full))
	h.s.HandleEvent(event(queue.EventInsert, full))

	if got := h.s.Reservations(); !sameIDs(got, "n") {
		t.Fatalf("duplicate insert should upsert, got %v", ids(got))
	}
	if h.notify.count() != 1 {
		t.Fatalf("expected a single notification, got %d", h.notify.count())
	}
}

func TestLocalCustomerCreateNotifiesOnEcho(t *testing.T) {
	full := raw("c1", "2024-06-12")
	full.Source = strp(model.SourceCustomer)
	src := newSource()
	h := loaded(t, src)

	// the booking instance writes through and caches before the echo
	src.put(full)
	h.s.UpdateReservationInCache(normalize.Reservation(full, nil))
	h.s.MarkAsLocallyUpdated("c1")
	h.s.HandleEvent(event(queue.EventInsert, full))

	if h.notify.count() != 1 {
		t.Fatalf("expected the echoed customer insert to notify, got %d", h.notify.count())
	}
	h.s.HandleEvent(event(queue.EventInsert, full))
	if h.notify.count() != 1 {
		t.Fatalf("redelivery must not notify again, got %d", h.notify.count())
	}
}

func TestCustomerInsertAfterRefetchStillNotifies(t *testing.T) {
	full := raw("c2", "2024-06-12")
	full.Source = strp(model.SourceCustomer)
	src := newSource()
	h := loaded(t, src)

	src.put(full)
	if err := h.s.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if !sameIDs(h.s.Reservations(), "c2") {
		t.Fatalf("refetch should pull the row in, got %v", ids(h.s.Reservations()))
	}
	h.s.HandleEvent(event(queue.EventInsert, full))

	if h.notify.count() != 1 {
		t.Fatalf("expected one notification, got %d", h.notify.count())
	}
}

func TestUpdateSuppressionPrecedence(t *testing.T) {
	src := newSource(raw("r", "2024-06-10"))
	h := loaded(t, src)

	local := normalize.Reservation(raw("r", "2024-06-10"), nil)
	local.Status = model.StatusConfirmed
	h.s.UpdateReservationInCache(local)
	h.s.MarkAsLocallyUpdated("r")

	// the echo carries the stale pending row
	h.clock.Advance(2999 * time.Millisecond)
	h.s.HandleEvent(event(queue.EventUpdate, raw("r", "2024-06-10")))
	if r, _ := getByID(h.s.Reservations(), "r"); r.Status != model.StatusConfirmed {
		t.Fatalf("echo inside the window overwrote local state: %s", r.Status)
	}
	if src.pointCalls() != 0 {
		t.Fatalf("suppressed update should not be hydrated")
	}

	h.clock.Advance(2 * time.Millisecond)
	h.s.HandleEvent(event(queue.EventUpdate, raw("r", "2024-06-10")))
	if r, _ := getByID(h.s.Reservations(), "r"); r.Status != model.StatusPending {
		t.Fatalf("update after the window should apply, got %s", r.Status)
	}
}

func TestDeleteIgnoresSuppression(t *testing.T) {
	h := loaded(t, newSource(raw("r", "2024-06-10"), raw("s", "2024-06-11")))
	h.s.MarkAsLocallyUpdated("r")

	h.s.HandleEvent(event(queue.EventDelete, model.RawReservation{ID: "r"}))
	h.s.HandleEvent(event(queue.EventDelete, model.RawReservation{ID: "unknown"}))

	if got := h.s.Reservations(); !sameIDs(got, "s") {
		t.Fatalf("unexpected snapshot %v", ids(got))
	}
}

func TestUpdateOfVanishedRecordRemovesIt(t *testing.T) {
	src := newSource(raw("r", "2024-06-10"))
	h := loaded(t, src)
	src.del("r")

	h.s.HandleEvent(event(queue.EventUpdate, model.RawReservation{ID: "r"}))
	if got := h.s.Reservations(); len(got) != 0 {
		t.Fatalf("expected removal, got %v", ids(got))
	}
}

func TestPointRefetchFailureDropsEvent(t *testing.T) {
	src := newSource(raw("r", "2024-06-10"))
	h := loaded(t, src)
	src.mu.Lock()
	src.byIDErr = errors.New("timeout")
	src.mu.Unlock()

	h.s.HandleEvent(event(queue.EventUpdate, model.RawReservation{ID: "r", Status: strp("cancelled")}))
	if r, ok := getByID(h.s.Reservations(), "r"); !ok || r.Status != model.StatusPending {
		t.Fatalf("failed refetch must leave the cache alone: %+v", r)
	}
}

func TestUpdateMovingRecordOutOfWindowDropsIt(t *testing.T) {
	src := newSource(raw("r", "2024-06-10"))
	h := loaded(t, src)
	src.put(raw("r", "2024-01-10"))

	h.s.HandleEvent(event(queue.EventUpdate, model.RawReservation{ID: "r"}))
	if got := h.s.Reservations(); len(got) != 0 {
		t.Fatalf("record dated before the window must be absent, got %v", ids(got))
	}
}

func TestEventsForOtherTenantsIgnored(t *testing.T) {
	h := loaded(t, newSource(raw("r", "2024-06-10")))
	ev := event(queue.EventDelete, model.RawReservation{ID: "r"})
	ev.TenantID = "other"
	h.s.HandleEvent(ev)
	if got := h.s.Reservations(); !sameIDs(got, "r") {
		t.Fatalf("foreign event applied: %v", ids(got))
	}
}

func getByID(rs []model.Reservation, id string) (model.Reservation, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}
	return model.Reservation{}, false
}
