// Package normalize maps raw reservation records from the remote source into
// the canonical model.Reservation.  Normalization never fails: missing or
// unparseable fields become nil (or the zero time for the primary date).
package normalize

import (
	"strings"
	"time"

	"github.com/iliyamo/reservation-sync/internal/model"
)

// PlaceholderServiceName is used when neither the inline snapshot nor the
// catalog knows a service's name.
const PlaceholderServiceName = "Service"

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Reservation converts raw into a canonical reservation, resolving its
// selected services against catalog.
func Reservation(raw model.RawReservation, catalog model.ServiceCatalog) model.Reservation {
	r := model.Reservation{
		ID:                    raw.ID,
		TenantID:              raw.TenantID,
		CustomerName:          trimmed(raw.CustomerName),
		CustomerPhone:         trimmed(raw.CustomerPhone),
		VehiclePlate:          trimmed(raw.VehiclePlate),
		StartTime:             clockTime(raw.StartTime),
		EndTime:               clockTime(raw.EndTime),
		StationID:             trimmed(raw.StationID),
		Status:                Status(raw.Status),
		Services:              Services(raw, catalog),
		OriginalReservationID: trimmed(raw.OriginalReservationID),
		Notes:                 raw.Notes,
		Source:                trimmed(raw.Source),
		CreatedBy:             trimmed(raw.CreatedBy),
		ConfirmationSMSSentAt: timestamp(raw.ConfirmationSMSSentAt),
		ReminderSMSSentAt:     timestamp(raw.ReminderSMSSentAt),
		Photos:                photos(raw.Photos),
		CreatedAt:             timestamp(raw.CreatedAt),
		UpdatedAt:             timestamp(raw.UpdatedAt),
	}
	if d, ok := Date(raw.ReservationDate); ok {
		r.Date = d
	}
	if d, ok := Date(raw.EndDate); ok {
		r.EndDate = &d
	}
	return r
}

// Status maps a raw status to a model.Status, defaulting to pending.
func Status(raw *string) model.Status {
	if raw == nil {
		return model.StatusPending
	}
	s := strings.ToLower(strings.TrimSpace(*raw))
	if s == "" {
		return model.StatusPending
	}
	return model.Status(s)
}

// Services resolves every selected service of raw.  Service IDs keep their
// listed order; inline items whose ID is not listed are appended after.
// Each field prefers the inline snapshot, then the catalog; a missing name
// falls back to PlaceholderServiceName.
func Services(raw model.RawReservation, catalog model.ServiceCatalog) []model.SelectedService {
	inline := make(map[string]model.RawServiceItem, len(raw.ServiceItems))
	for _, it := range raw.ServiceItems {
		if it.ServiceID == "" {
			continue
		}
		if _, dup := inline[it.ServiceID]; !dup {
			inline[it.ServiceID] = it
		}
	}

	ids := make([]string, 0, len(raw.ServiceIDs)+len(raw.ServiceItems))
	seen := make(map[string]bool, cap(ids))
	for _, id := range raw.ServiceIDs {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, it := range raw.ServiceItems {
		if it.ServiceID != "" && !seen[it.ServiceID] {
			seen[it.ServiceID] = true
			ids = append(ids, it.ServiceID)
		}
	}

	out := make([]model.SelectedService, 0, len(ids))
	for _, id := range ids {
		out = append(out, resolveService(id, inline[id], catalog))
	}
	return out
}

func resolveService(id string, it model.RawServiceItem, catalog model.ServiceCatalog) model.SelectedService {
	live, hasLive := catalog.Lookup(id)
	s := model.SelectedService{ID: id, Name: PlaceholderServiceName}

	switch {
	case it.Name != nil && strings.TrimSpace(*it.Name) != "":
		s.Name = strings.TrimSpace(*it.Name)
	case hasLive && live.Name != "":
		s.Name = live.Name
	}

	s.Shortcut = firstString(it.Shortcut, liveField(hasLive, live.Shortcut))
	s.PriceSmall = firstFloat(it.PriceSmall, liveFloat(hasLive, live.PriceSmall))
	s.PriceMedium = firstFloat(it.PriceMedium, liveFloat(hasLive, live.PriceMedium))
	s.PriceLarge = firstFloat(it.PriceLarge, liveFloat(hasLive, live.PriceLarge))
	return s
}

// Date parses a day from the source.  Timestamps are truncated to their
// UTC calendar day.
func Date(raw *string) (time.Time, bool) {
	t, ok := parse(raw)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

func timestamp(raw *string) *time.Time {
	t, ok := parse(raw)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

func parse(raw *string) (time.Time, bool) {
	if raw == nil {
		return time.Time{}, false
	}
	s := strings.TrimSpace(*raw)
	if s == "" || strings.HasPrefix(s, "0000-00-00") || strings.HasPrefix(s, "0001-01-01") {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// clockTime keeps HH:MM from values like "09:30" or "09:30:00".
func clockTime(raw *string) *string {
	v := trimmed(raw)
	if v == nil {
		return nil
	}
	s := *v
	if len(s) >= 5 && s[2] == ':' {
		s = s[:5]
	}
	return &s
}

func trimmed(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	return &s
}

func photos(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func liveField(ok bool, v *string) *string {
	if !ok {
		return nil
	}
	return v
}

func liveFloat(ok bool, v *float64) *float64 {
	if !ok {
		return nil
	}
	return v
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if t := trimmed(v); t != nil {
			return t
		}
	}
	return nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			f := *v
			return &f
		}
	}
	return nil
}
