package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/reservation-sync/internal/clock"
	"github.com/iliyamo/reservation-sync/internal/config"
	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/queue"
)

func defaultPolicy() BackoffPolicy { return PolicyFromConfig(config.DefaultSyncConfig()) }

func TestRetryDelayBounds(t *testing.T) {
	p := defaultPolicy()
	want := []time.Duration{1500 * time.Millisecond, 2250 * time.Millisecond, 3375 * time.Millisecond}
	for i, w := range want {
		if got := p.RetryDelay(i + 1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
	prev := time.Duration(0)
	for a := 1; a <= p.MaxRetries; a++ {
		d := p.RetryDelay(a)
		if d < prev || d > 30*time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds (prev %v)", a, d, prev)
		}
		prev = d
	}
	if got := p.RetryDelay(40); got != 30*time.Second {
		t.Fatalf("delay must cap at 30s, got %v", got)
	}
}

func TestBackoffFallsBackToPolling(t *testing.T) {
	p := defaultPolicy()
	s := p.OnSubscribed(ConnState{})
	for i := 1; i <= 7; i++ {
		var act Action
		s, act = p.OnLost(s)
		if !act.Schedule || !act.RefetchNow || s.Attempt != i {
			t.Fatalf("loss %d: state %+v action %+v", i, s, act)
		}
		if i <= 5 && (s.Phase != PhaseRetrying || s.NextDelay != p.RetryDelay(i)) {
			t.Fatalf("loss %d: expected retrying, got %+v", i, s)
		}
		if i > 5 && (s.Phase != PhasePolling || s.NextDelay != 30*time.Second) {
			t.Fatalf("loss %d: expected polling at 30s, got %+v", i, s)
		}
		s = p.OnTimer(s)
	}
	if s = p.OnSubscribed(s); s.Phase != PhaseConnected || s.Attempt != 0 {
		t.Fatalf("subscribe must reset: %+v", s)
	}
}

func TestOnLostCoalescesWhileScheduled(t *testing.T) {
	p := defaultPolicy()
	s, _ := p.OnLost(ConnState{Phase: PhaseConnected})
	again, act := p.OnLost(s)
	if again != s || act.Schedule || !act.RefetchNow {
		t.Fatalf("duplicate loss should only refetch: %+v %+v", again, act)
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	c := clock.NewFake(now)
	l := NewRateLimiter(c, 10*time.Second)
	n := 0
	for _, gap := range []time.Duration{0, 2000 * time.Millisecond} {
		c.Advance(gap)
		if l.Allow() {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("2000ms apart: expected 1 refetch, got %d", n)
	}

	l = NewRateLimiter(c, 10*time.Second)
	n = 0
	for _, gap := range []time.Duration{0, 11000 * time.Millisecond} {
		c.Advance(gap)
		if l.Allow() {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("11000ms apart: expected 2 refetches, got %d", n)
	}
}

func TestRateLimiterAdmitsAtExactInterval(t *testing.T) {
	c := clock.NewFake(now)
	l := NewRateLimiter(c, 10*time.Second)
	if !l.Allow() {
		t.Fatalf("first refetch must be admitted")
	}
	c.Advance(9999 * time.Millisecond)
	if l.Allow() {
		t.Fatalf("refetch inside the interval must be skipped")
	}
	c.Advance(time.Millisecond)
	if !l.Allow() {
		t.Fatalf("refetch at the interval boundary must be admitted")
	}
}

func TestRateLimiterZeroIntervalAdmitsAll(t *testing.T) {
	l := NewRateLimiter(clock.NewFake(now), 0)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d rejected", i)
		}
	}
}

func started(t *testing.T, src *fakeSource, feed *fakeFeed) *harness {
	t.Helper()
	h := newHarness(t, src, feed)
	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func TestSubscribeMarksConnected(t *testing.T) {
	feed := &fakeFeed{}
	h := started(t, newSource(), feed)
	if h.s.IsConnected() {
		t.Fatalf("connected before the subscribed status")
	}
	feed.last().OnStatus(queue.StatusSubscribed, nil)
	if !h.s.IsConnected() {
		t.Fatalf("expected connected")
	}
}

func TestReconnectStormSuppressed(t *testing.T) {
	src := newSource(raw("a", "2024-06-01"))
	feed := &fakeFeed{}
	h := started(t, src, feed)
	hs := feed.last()
	hs.OnStatus(queue.StatusSubscribed, nil)
	before := len(src.calls())

	for i := 0; i < 5; i++ {
		hs.OnStatus(queue.StatusClosed, errors.New("socket closed"))
		h.clock.Advance(100 * time.Millisecond)
	}

	if got := len(src.calls()) - before; got != 1 {
		t.Fatalf("expected exactly one refetch during the burst, got %d", got)
	}
	pending := h.clock.Pending()
	if len(pending) != 1 || pending[0] != 1000*time.Millisecond {
		t.Fatalf("expected one retry timer 1000ms out (1500ms from the first close), got %v", pending)
	}
	st := h.s.State()
	if st.IsConnected || st.Conn.Phase != PhaseRetrying || st.Conn.Attempt != 1 || st.Conn.NextDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected connection state %+v", st.Conn)
	}
	if !feed.subs[0].closed {
		t.Fatalf("lost subscription should be closed")
	}

	h.clock.Advance(time.Second)
	if feed.attempts() != 2 {
		t.Fatalf("expected a resubscribe after the delay, got %d attempts", feed.attempts())
	}
	if got := len(src.calls()) - before; got != 1 {
		t.Fatalf("refetch at resubscribe should be rate limited, got %d", got)
	}
	feed.last().OnStatus(queue.StatusSubscribed, nil)
	if st := h.s.State(); !st.IsConnected || st.Conn.Attempt != 0 {
		t.Fatalf("expected reset after resubscribe: %+v", st.Conn)
	}
}

func TestSubscribeFailuresEscalateToPolling(t *testing.T) {
	feed := &fakeFeed{err: errors.New("broker unreachable")}
	h := started(t, newSource(), feed)

	var delays []time.Duration
	for i := 0; i < 7; i++ {
		d := h.s.State().Conn.NextDelay
		delays = append(delays, d)
		h.clock.Advance(d)
	}
	want := []time.Duration{
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
		7593750 * time.Microsecond,
		30 * time.Second,
		30 * time.Second,
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: got %v want %v (all %v)", i, delays[i], want[i], delays)
		}
	}
	if feed.attempts() != 8 {
		t.Fatalf("expected 8 subscribe attempts, got %d", feed.attempts())
	}
	if h.s.State().Conn.Phase != PhasePolling {
		t.Fatalf("expected polling, got %v", h.s.State().Conn.Phase)
	}
}

func TestPollingRefetchesEveryInterval(t *testing.T) {
	feed := &fakeFeed{err: errors.New("broker unreachable")}
	src := newSource()
	h := started(t, src, feed)
	for h.s.State().Conn.Phase != PhasePolling {
		h.clock.Advance(h.s.State().Conn.NextDelay)
	}
	before := len(src.calls())
	h.clock.Advance(30 * time.Second)
	h.clock.Advance(30 * time.Second)
	if got := len(src.calls()) - before; got != 2 {
		t.Fatalf("expected one refetch per poll, got %d", got)
	}
}

func TestCloseCancelsReconnect(t *testing.T) {
	feed := &fakeFeed{}
	h := started(t, newSource(), feed)
	hs := feed.last()
	hs.OnStatus(queue.StatusSubscribed, nil)
	hs.OnStatus(queue.StatusError, errors.New("boom"))
	h.s.LoadMoreHistoryDebounced()

	if err := h.s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p := h.clock.Pending(); len(p) != 0 {
		t.Fatalf("timers left after close: %v", p)
	}
	h.clock.Advance(time.Minute)
	if feed.attempts() != 1 {
		t.Fatalf("reconnected after close")
	}
	if err := h.s.LoadInitial(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStaleSubscriptionIgnored(t *testing.T) {
	src := newSource(raw("a", "2024-06-10"))
	feed := &fakeFeed{}
	h := started(t, src, feed)
	old := feed.last()
	old.OnStatus(queue.StatusSubscribed, nil)
	old.OnStatus(queue.StatusClosed, nil)
	h.clock.Advance(1500 * time.Millisecond)
	feed.last().OnStatus(queue.StatusSubscribed, nil)

	old.OnEvent(event(queue.EventDelete, model.RawReservation{ID: "a"}))
	old.OnStatus(queue.StatusClosed, nil)

	if !h.s.IsConnected() {
		t.Fatalf("stale close must not disconnect the live subscription")
	}
	if got := h.s.Reservations(); !sameIDs(got, "a") {
		t.Fatalf("stale event applied: %v", ids(got))
	}
}
