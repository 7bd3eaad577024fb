package model

import "time"

// Status is the lifecycle state of a reservation.
type Status string

const (
    StatusPending    Status = "pending"
    StatusConfirmed  Status = "confirmed"
    StatusInProgress Status = "in_progress"
    StatusCompleted  Status = "completed"
    StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// CanTransition reports whether moving from s to next follows the
// lifecycle pending -> confirmed -> in_progress -> completed, with
// cancelled reachable from every non-terminal state.  Re-applying the
// current status is allowed.
func (s Status) CanTransition(next Status) bool {
    if s == next {
        return true
    }
    if s.Terminal() {
        return false
    }
    if next == StatusCancelled {
        return true
    }
    switch s {
    case StatusPending:
        return next == StatusConfirmed
    case StatusConfirmed:
        return next == StatusInProgress
    case StatusInProgress:
        return next == StatusCompleted
    }
    return false
}

// Reservation sources.  A customer source marks bookings made through the
// public booking flow rather than by staff.
const (
    SourceCustomer = "customer"
    SourceStaff    = "staff"
)

// SelectedService is a service attached to a reservation, resolved to
// display metadata.  Prices are tiered by vehicle size and any tier may be
// unknown.
type SelectedService struct {
    ID          string   `json:"id"`
    Name        string   `json:"name"`
    Shortcut    *string  `json:"shortcut"`
    PriceSmall  *float64 `json:"price_small"`
    PriceMedium *float64 `json:"price_medium"`
    PriceLarge  *float64 `json:"price_large"`
}

// Reservation is the canonical in-memory reservation held by the
// synchronization layer.
//
// Fields:
//  ID                    – opaque identifier, unique within a tenant.
//  TenantID              – owning tenant.
//  Date                  – primary day of the reservation (UTC midnight);
//                          zero when the source date could not be parsed.
//  EndDate               – last day for multi-day reservations.
//  StartTime, EndTime    – time of day as HH:MM.
//  StationID             – assigned station/resource.
//  Status                – never empty after normalization.
//  Services              – denormalized list of selected services.
//  OriginalReservationID – set when this record is a change request.
//  Source                – provenance (customer or staff).
type Reservation struct {
    ID                    string            `json:"id"`
    TenantID              string            `json:"tenant_id"`
    CustomerName          *string           `json:"customer_name"`
    CustomerPhone         *string           `json:"customer_phone"`
    VehiclePlate          *string           `json:"vehicle_plate"`
    Date                  time.Time         `json:"date"`
    EndDate               *time.Time        `json:"end_date"`
    StartTime             *string           `json:"start_time"`
    EndTime               *string           `json:"end_time"`
    StationID             *string           `json:"station_id"`
    Status                Status            `json:"status"`
    Services              []SelectedService `json:"services"`
    OriginalReservationID *string           `json:"original_reservation_id"`
    Notes                 *string           `json:"notes"`
    Source                *string           `json:"source"`
    CreatedBy             *string           `json:"created_by"`
    ConfirmationSMSSentAt *time.Time        `json:"confirmation_sms_sent_at"`
    ReminderSMSSentAt     *time.Time        `json:"reminder_sms_sent_at"`
    Photos                []string          `json:"photos"`
    CreatedAt             *time.Time        `json:"created_at"`
    UpdatedAt             *time.Time        `json:"updated_at"`
}

// FromCustomer reports whether the reservation was booked by a customer.
func (r Reservation) FromCustomer() bool {
    return r.Source != nil && *r.Source == SourceCustomer
}

// Window is the date range [From, ∞) materialized in the cache.  It only
// ever grows backward.
type Window struct {
    From time.Time `json:"from"`
}

// Contains reports whether day d falls inside the window.
func (w Window) Contains(d time.Time) bool { return !d.Before(w.From) }
