// Package cache holds the windowed, in-memory list of reservations for one
// tenant.  A Cache is not safe for concurrent use; its owner serializes
// access.
package cache

import (
	"errors"
	"time"

	"github.com/iliyamo/reservation-sync/internal/model"
)

// ErrWindowAdvance is returned when a caller tries to move the window's
// lower bound forward in time.
var ErrWindowAdvance = errors.New("window lower bound may only move backward")

// Cache is the materialized window of reservations for a tenant.  Entries
// keep arrival order and ids are unique after every operation.
type Cache struct {
	tenantID string
	window   model.Window
	ready    bool
	items    []model.Reservation
	index    map[string]int
}

// New returns an empty, uninitialized cache for tenantID.
func New(tenantID string) *Cache {
	return &Cache{tenantID: tenantID, index: make(map[string]int)}
}

// InitialWindowFrom returns the default lower bound for now: one week
// before the Monday of the previous week.
func InitialWindowFrom(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	monday := day.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, -14)
}

// Initialize drops any content and sets the window to the default
// [InitialWindowFrom(now), ∞).
func (c *Cache) Initialize(now time.Time) model.Window {
	c.clear()
	c.window = model.Window{From: InitialWindowFrom(now)}
	c.ready = true
	return c.window
}

// Ready reports whether the cache has a window.
func (c *Cache) Ready() bool { return c.ready }

// Window returns the current window.
func (c *Cache) Window() model.Window { return c.window }

// Len returns the number of materialized reservations.
func (c *Cache) Len() int { return len(c.items) }

// Get returns the reservation with id.
func (c *Cache) Get(id string) (model.Reservation, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Reservation{}, false
	}
	return c.items[i], true
}

// Reset replaces the content of the current window with records.  When an
// id repeats, its first occurrence wins.
func (c *Cache) Reset(records []model.Reservation) {
	c.clear()
	for _, r := range records {
		if !c.admits(r) {
			continue
		}
		if _, dup := c.index[r.ID]; dup {
			continue
		}
		c.index[r.ID] = len(c.items)
		c.items = append(c.items, r)
	}
}

// ReplaceWindow moves the lower bound back to newFrom and prepends the
// older records ahead of the current list.  Ids already cached win over
// incoming duplicates.
func (c *Cache) ReplaceWindow(newFrom time.Time, records []model.Reservation) error {
	if c.ready && newFrom.After(c.window.From) {
		return ErrWindowAdvance
	}
	c.window.From = newFrom
	c.ready = true

	older := make([]model.Reservation, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" || (r.TenantID != "" && r.TenantID != c.tenantID) {
			continue
		}
		if _, cached := c.index[r.ID]; cached || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		older = append(older, r)
	}
	if len(older) == 0 {
		return nil
	}
	c.items = append(older, c.items...)
	c.reindex()
	return nil
}

// Upsert replaces the reservation with the same id in place or appends it.
// Records belonging to another tenant or dated before the window are not
// materialized; an existing entry that moved out of the window is dropped.
func (c *Cache) Upsert(r model.Reservation) {
	if r.ID == "" || (r.TenantID != "" && r.TenantID != c.tenantID) {
		return
	}
	if !c.admits(r) {
		c.Remove(r.ID)
		return
	}
	if i, ok := c.index[r.ID]; ok {
		c.items[i] = r
		return
	}
	c.index[r.ID] = len(c.items)
	c.items = append(c.items, r)
}

// Remove drops the reservation with id.  Unknown ids are ignored.
func (c *Cache) Remove(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].ID] = j
	}
	return true
}

// Snapshot returns a copy of the materialized list.
func (c *Cache) Snapshot() []model.Reservation {
	out := make([]model.Reservation, len(c.items))
	copy(out, c.items)
	return out
}

// Invalidate discards the window and every entry.
func (c *Cache) Invalidate() {
	c.clear()
	c.window = model.Window{}
	c.ready = false
}

func (c *Cache) admits(r model.Reservation) bool {
	if r.ID == "" || (r.TenantID != "" && r.TenantID != c.tenantID) {
		return false
	}
	if !c.ready || r.Date.IsZero() {
		return true
	}
	return c.window.Contains(r.Date)
}

func (c *Cache) clear() {
	c.items = nil
	c.index = make(map[string]int)
}

func (c *Cache) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i, r := range c.items {
		c.index[r.ID] = i
	}
}
