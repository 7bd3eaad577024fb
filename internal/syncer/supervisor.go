package syncer

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliyamo/reservation-sync/internal/clock"
	"github.com/iliyamo/reservation-sync/internal/config"
)

// ConnPhase is the realtime connectivity phase of a tenant.
type ConnPhase int

const (
	// PhaseDisconnected is the phase before the first subscribe succeeds.
	PhaseDisconnected ConnPhase = iota
	PhaseConnected
	PhaseRetrying
	PhasePolling
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseRetrying:
		return "retrying"
	case PhasePolling:
		return "polling"
	default:
		return "disconnected"
	}
}

// ConnState is the supervisor state.  Attempt counts consecutive losses
// since the last successful subscribe.  Scheduled is true while a
// reconnect timer is armed.
type ConnState struct {
	Phase     ConnPhase     `json:"phase"`
	Attempt   int           `json:"attempt"`
	NextDelay time.Duration `json:"next_delay"`
	Scheduled bool          `json:"scheduled"`
}

// Action is what the owner of a ConnState must do after a transition.
type Action struct {
	// RefetchNow asks for a rate-limited full refetch right away.
	RefetchNow bool
	// Schedule asks for a timer that fires after Delay.  When it fires the
	// owner calls OnTimer, refetches (rate-limited) and resubscribes.
	Schedule bool
	Delay    time.Duration
}

// BackoffPolicy holds the reconnect tunables.  Its methods are pure
// transition functions over ConnState.
type BackoffPolicy struct {
	Base         time.Duration
	Factor       float64
	Max          time.Duration
	MaxRetries   int
	PollInterval time.Duration
}

// PolicyFromConfig extracts the backoff policy from cfg.
func PolicyFromConfig(cfg config.SyncConfig) BackoffPolicy {
	return BackoffPolicy{
		Base:         cfg.RetryBase,
		Factor:       cfg.RetryFactor,
		Max:          cfg.RetryMax,
		MaxRetries:   cfg.MaxRetries,
		PollInterval: cfg.PollInterval,
	}
}

// RetryDelay returns min(Base * Factor^attempt, Max).
func (p BackoffPolicy) RetryDelay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt))
	if d > float64(p.Max) || math.IsInf(d, 1) {
		return p.Max
	}
	return time.Duration(d)
}

// OnSubscribed is the transition for a successful subscribe.
func (p BackoffPolicy) OnSubscribed(s ConnState) ConnState {
	return ConnState{Phase: PhaseConnected}
}

// OnLost is the transition for a subscription that closed, errored or
// could not be opened.  A loss reported while a reconnect is already
// scheduled only asks for the immediate refetch; the attempt counter and
// the armed timer are left alone.
func (p BackoffPolicy) OnLost(s ConnState) (ConnState, Action) {
	if s.Scheduled && s.Phase != PhaseConnected {
		return s, Action{RefetchNow: true}
	}
	next := ConnState{Attempt: s.Attempt + 1, Scheduled: true}
	if next.Attempt <= p.MaxRetries {
		next.Phase = PhaseRetrying
		next.NextDelay = p.RetryDelay(next.Attempt)
	} else {
		next.Phase = PhasePolling
		next.NextDelay = p.PollInterval
	}
	return next, Action{RefetchNow: true, Schedule: true, Delay: next.NextDelay}
}

// OnTimer is the transition for a reconnect timer that fired.
func (p BackoffPolicy) OnTimer(s ConnState) ConnState {
	s.Scheduled = false
	return s
}

// RateLimiter admits at most one event per interval.  Rejections are
// silent; callers log them.  Time comes from the injected clock so fake
// clocks drive the token bucket.
type RateLimiter struct {
	clock   clock.Clock
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter spacing events at least interval apart.
// A non-positive interval admits everything.
func NewRateLimiter(c clock.Clock, interval time.Duration) *RateLimiter {
	return &RateLimiter{clock: c, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether an event may happen now and records it if so.
func (l *RateLimiter) Allow() bool { return l.limiter.AllowN(l.clock.Now(), 1) }
