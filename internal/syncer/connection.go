package syncer

import (
	"github.com/iliyamo/reservation-sync/internal/queue"
)

// connect opens a new subscription generation.  Handlers of older
// generations are ignored from here on.
func (s *Syncer) connect() {
	s.mu.Lock()
	if s.closed || s.feed == nil {
		s.mu.Unlock()
		return
	}
	s.subGen++
	gen := s.subGen
	s.mu.Unlock()

	sub, err := s.feed.Subscribe(s.ctx, s.tenantID, queue.Handlers{
		OnEvent:  func(ev queue.ChangeEvent) { s.handleEvent(gen, ev) },
		OnStatus: func(st queue.Status, err error) { s.onStatus(gen, st, err) },
	})
	if err != nil {
		s.log.Warn("subscribe failed", "error", err)
		s.connectionLost(gen)
		return
	}

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		_ = sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

func (s *Syncer) onStatus(gen uint64, st queue.Status, err error) {
	switch st {
	case queue.StatusSubscribed:
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.current(gen) {
			return
		}
		if s.retry != nil {
			s.retry.Stop()
			s.retry = nil
		}
		s.conn = s.policy.OnSubscribed(s.conn)
		s.log.Info("change feed subscribed")
	case queue.StatusClosed, queue.StatusError:
		if err != nil {
			s.log.Warn("change feed lost", "status", string(st), "error", err)
		}
		s.connectionLost(gen)
	}
}

// connectionLost drives the supervisor on a closed, failed or refused
// subscription: an immediate rate-limited refetch, then a reconnect timer
// unless one is already armed.
func (s *Syncer) connectionLost(gen uint64) {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	next, act := s.policy.OnLost(s.conn)
	s.conn = next
	if act.Schedule {
		if s.retry != nil {
			s.retry.Stop()
		}
		s.retry = s.clock.AfterFunc(act.Delay, s.onRetryTimer)
		s.log.Info("change feed reconnect scheduled",
			"phase", next.Phase.String(), "attempt", next.Attempt, "delay", act.Delay)
	}
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if act.RefetchNow {
		s.refetchLimited()
	}
}

func (s *Syncer) onRetryTimer() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	s.conn = s.policy.OnTimer(s.conn)
	s.mu.Unlock()

	s.refetchLimited()
	s.connect()
}
