// Package suppress tracks reservations that were just written locally so
// that a stale remote echo of the same write can be ignored for a short
// time.
package suppress

import (
	"sync"
	"time"

	"github.com/iliyamo/reservation-sync/internal/clock"
)

// DefaultTTL is how long a local write stays authoritative.
const DefaultTTL = 3 * time.Second

// Marks is a per-instance TTL set of reservation ids.
type Marks struct {
	clock clock.Clock
	ttl   time.Duration

	mu    sync.Mutex
	marks map[string]time.Time
}

// New returns an empty set whose marks expire after ttl.
func New(c clock.Clock, ttl time.Duration) *Marks {
	if c == nil {
		c = clock.Real()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Marks{clock: c, ttl: ttl, marks: make(map[string]time.Time)}
}

// Set creates or refreshes the mark for id.
func (m *Marks) Set(id string) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[id] = now
	m.sweepLocked(now)
}

// Has reports whether id was marked less than ttl ago.  Expired marks are
// forgotten.
func (m *Marks) Has(id string) bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.marks[id]
	if !ok {
		return false
	}
	if now.Sub(at) < m.ttl {
		return true
	}
	delete(m.marks, id)
	return false
}

// Len returns the number of marks not yet swept.
func (m *Marks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}

func (m *Marks) sweepLocked(now time.Time) {
	for id, at := range m.marks {
		if now.Sub(at) >= m.ttl {
			delete(m.marks, id)
		}
	}
}
