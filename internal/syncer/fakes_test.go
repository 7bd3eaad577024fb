package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/reservation-sync/internal/clock"
	"github.com/iliyamo/reservation-sync/internal/config"
	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/normalize"
	"github.com/iliyamo/reservation-sync/internal/queue"
)

const tenant = "T"

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func strp(s string) *string { return &s }

func raw(id, date string) model.RawReservation {
	return model.RawReservation{ID: id, TenantID: tenant, ReservationDate: strp(date)}
}

type queryCall struct {
	from time.Time
	to   *time.Time
}

type fakeSource struct {
	mu       sync.Mutex
	rows     map[string]model.RawReservation
	order    []string
	queries  []queryCall
	byID     []string
	queryErr error
	byIDErr  error
	// block, when set, is received from before Query returns
	block   chan struct{}
	entered chan struct{}
}

func newSource(rows ...model.RawReservation) *fakeSource {
	f := &fakeSource{rows: map[string]model.RawReservation{}}
	for _, r := range rows {
		f.put(r)
	}
	return f
}

func (f *fakeSource) put(r model.RawReservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[r.ID]; !ok {
		f.order = append(f.order, r.ID)
	}
	f.rows[r.ID] = r
}

func (f *fakeSource) del(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
}

func (f *fakeSource) Query(ctx context.Context, tenantID string, from time.Time, to *time.Time) ([]model.RawReservation, error) {
	f.mu.Lock()
	f.queries = append(f.queries, queryCall{from: from, to: to})
	block, entered, qerr := f.block, f.entered, f.queryErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if qerr != nil {
		return nil, qerr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RawReservation
	for _, id := range f.order {
		r, ok := f.rows[id]
		if !ok || r.TenantID != tenantID {
			continue
		}
		d, ok := normalize.Date(r.ReservationDate)
		if !ok || d.Before(from) || (to != nil && !d.Before(*to)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSource) QueryByID(ctx context.Context, tenantID, id string) (*model.RawReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID = append(f.byID, id)
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	r, ok := f.rows[id]
	if !ok || r.TenantID != tenantID {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeSource) calls() []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queryCall(nil), f.queries...)
}

func (f *fakeSource) historyCalls() int {
	n := 0
	for _, q := range f.calls() {
		if q.to != nil {
			n++
		}
	}
	return n
}

func (f *fakeSource) pointCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeSub struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeFeed struct {
	mu       sync.Mutex
	handlers []queue.Handlers
	subs     []*fakeSub
	err      error
}

func (f *fakeFeed) Subscribe(ctx context.Context, tenantID string, h queue.Handlers) (queue.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSub{}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeFeed) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeFeed) last() queue.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []model.Reservation
}

func (n *fakeNotifier) NewCustomerReservation(ctx context.Context, r model.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type fakeCatalog model.ServiceCatalog

func (c fakeCatalog) Services(ctx context.Context, tenantID string) (model.ServiceCatalog, error) {
	return model.ServiceCatalog(c), nil
}

// cachingCatalog records invalidations like a Redis-backed catalog would.
type cachingCatalog struct {
	mu          sync.Mutex
	cat         model.ServiceCatalog
	invalidated []string
}

func (c *cachingCatalog) Services(ctx context.Context, tenantID string) (model.ServiceCatalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cat, nil
}

func (c *cachingCatalog) Invalidate(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tenantID)
	return nil
}

type failingCatalog struct{}

func (failingCatalog) Services(ctx context.Context, tenantID string) (model.ServiceCatalog, error) {
	return nil, errors.New("catalog down")
}

// now is Wednesday of the week whose Monday is 2024-06-03.
var now = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

type harness struct {
	s      *Syncer
	clock  *clock.Fake
	src    *fakeSource
	feed   *fakeFeed
	notify *fakeNotifier
}

func newHarness(t *testing.T, src *fakeSource, feed *fakeFeed) *harness {
	t.Helper()
	h := &harness{clock: clock.NewFake(now), src: src, feed: feed, notify: &fakeNotifier{}}
	opts := Options{
		Source:   src,
		Notifier: h.notify,
		Clock:    h.clock,
		Config:   config.DefaultSyncConfig(),
	}
	if feed != nil {
		opts.Feed = feed
	}
	h.s = New(tenant, opts)
	t.Cleanup(func() { _ = h.s.Close() })
	return h
}

// withWindow positions the cache at from holding rows, bypassing the
// default initial window.
func (h *harness) withWindow(from time.Time, rows ...model.RawReservation) {
	recs := make([]model.Reservation, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, normalize.Reservation(r, nil))
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.cache.Invalidate()
	if err := h.s.cache.ReplaceWindow(from, recs); err != nil {
		panic(err)
	}
}

func ids(rs []model.Reservation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func sameIDs(got []model.Reservation, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}
