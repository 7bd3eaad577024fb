package model

// RawServiceItem is the service snapshot stored on a reservation at booking
// time.  Any field may be missing.
type RawServiceItem struct {
    ServiceID   string   `json:"service_id"`
    Name        *string  `json:"name,omitempty"`
    Shortcut    *string  `json:"shortcut,omitempty"`
    PriceSmall  *float64 `json:"price_small,omitempty"`
    PriceMedium *float64 `json:"price_medium,omitempty"`
    PriceLarge  *float64 `json:"price_large,omitempty"`
}

// RawReservation is a reservation as delivered by the remote source, either
// as a repository row or as a (possibly partial) change feed payload.
// Dates and timestamps are kept as the source's strings; the normalizer
// parses them leniently.
type RawReservation struct {
    ID                    string           `json:"id"`
    TenantID              string           `json:"tenant_id"`
    CustomerName          *string          `json:"customer_name,omitempty"`
    CustomerPhone         *string          `json:"customer_phone,omitempty"`
    VehiclePlate          *string          `json:"vehicle_plate,omitempty"`
    ReservationDate       *string          `json:"reservation_date,omitempty"`
    EndDate               *string          `json:"end_date,omitempty"`
    StartTime             *string          `json:"start_time,omitempty"`
    EndTime               *string          `json:"end_time,omitempty"`
    StationID             *string          `json:"station_id,omitempty"`
    Status                *string          `json:"status,omitempty"`
    ServiceIDs            []string         `json:"service_ids,omitempty"`
    ServiceItems          []RawServiceItem `json:"service_items,omitempty"`
    OriginalReservationID *string          `json:"original_reservation_id,omitempty"`
    Notes                 *string          `json:"notes,omitempty"`
    Source                *string          `json:"source,omitempty"`
    CreatedBy             *string          `json:"created_by,omitempty"`
    ConfirmationSMSSentAt *string          `json:"confirmation_sms_sent_at,omitempty"`
    ReminderSMSSentAt     *string          `json:"reminder_sms_sent_at,omitempty"`
    Photos                []string         `json:"photos,omitempty"`
    CreatedAt             *string          `json:"created_at,omitempty"`
    UpdatedAt             *string          `json:"updated_at,omitempty"`
}
