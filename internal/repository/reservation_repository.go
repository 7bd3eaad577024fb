package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/iliyamo/reservation-sync/internal/model"
)

// PurgedStatus marks rows that were cancelled and purged.  They are never
// returned by range queries.
const PurgedStatus = "purged"

const dbTimeLayout = "2006-01-02 15:04:05"

// ReservationRepo is the remote reservation source backed by SQL.  Every
// query is scoped to a tenant.  Dates are exchanged as YYYY-MM-DD strings
// so that the same statements run on MySQL and SQLite.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, tenant_id, customer_name, customer_phone, vehicle_plate,
    reservation_date, end_date, start_time, end_time, station_id, status,
    service_ids, service_items, original_reservation_id, notes, source, created_by,
    confirmation_sms_sent_at, reminder_sms_sent_at, photo_urls, created_at, updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

// Query returns the tenant's reservations dated in [from, to).  A nil to
// leaves the range open-ended.  Purged rows are excluded.  Results are
// ordered by date and start time.
func (r *ReservationRepo) Query(ctx context.Context, tenantID string, from time.Time, to *time.Time) ([]model.RawReservation, error) {
    q := `SELECT ` + reservationColumns + `
          FROM reservations
          WHERE tenant_id = ? AND reservation_date >= ?
            AND (status IS NULL OR status <> ?)`
    args := []any{tenantID, from.UTC().Format("2006-01-02"), PurgedStatus}
    if to != nil {
        q += ` AND reservation_date < ?`
        args = append(args, to.UTC().Format("2006-01-02"))
    }
    q += ` ORDER BY reservation_date, start_time, id`

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, fmt.Errorf("query reservations: %w", err)
    }
    defer rows.Close()
    out := make([]model.RawReservation, 0)
    for rows.Next() {
        raw, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, raw)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// QueryByID returns the full row for id, or nil when the tenant has no
// such reservation.  Purged rows read as absent, the same as in Query.
func (r *ReservationRepo) QueryByID(ctx context.Context, tenantID, id string) (*model.RawReservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE tenant_id = ? AND id = ? AND (status IS NULL OR status <> ?)`
    raw, err := scanReservation(r.db.QueryRowContext(ctx, q, tenantID, id, PurgedStatus))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return &raw, nil
}

// Create inserts raw.  Status defaults to pending.
func (r *ReservationRepo) Create(ctx context.Context, raw model.RawReservation) error {
    if raw.ID == "" || raw.TenantID == "" || raw.ReservationDate == nil {
        return fmt.Errorf("create reservation: id, tenant_id and reservation_date are required")
    }
    status := string(model.StatusPending)
    if raw.Status != nil && *raw.Status != "" {
        status = *raw.Status
    }
    serviceIDs, err := encodeJSON(raw.ServiceIDs)
    if err != nil {
        return err
    }
    items, err := encodeJSON(raw.ServiceItems)
    if err != nil {
        return err
    }
    photos, err := encodeJSON(raw.Photos)
    if err != nil {
        return err
    }
    now := time.Now().UTC().Format(dbTimeLayout)
    const q = `INSERT INTO reservations (id, tenant_id, customer_name, customer_phone, vehicle_plate,
        reservation_date, end_date, start_time, end_time, station_id, status,
        service_ids, service_items, original_reservation_id, notes, source, created_by,
        photo_urls, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err = r.db.ExecContext(ctx, q,
        raw.ID, raw.TenantID, raw.CustomerName, raw.CustomerPhone, raw.VehiclePlate,
        *raw.ReservationDate, raw.EndDate, raw.StartTime, raw.EndTime, raw.StationID, status,
        serviceIDs, items, raw.OriginalReservationID, raw.Notes, raw.Source, raw.CreatedBy,
        photos, now, now,
    )
    if err != nil {
        return fmt.Errorf("insert reservation: %w", err)
    }
    return nil
}

// UpdateStatus moves a reservation to status inside a transaction and
// returns the updated row.  It returns ErrNotFound when the tenant has no
// such reservation and ErrConflict when the transition is not allowed.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, tenantID, id string, status model.Status) (*model.RawReservation, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var current sql.NullString
    err = tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&current)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    from := model.StatusPending
    if current.Valid && strings.TrimSpace(current.String) != "" {
        from = model.Status(strings.ToLower(strings.TrimSpace(current.String)))
    }
    if !from.CanTransition(status) {
        return nil, fmt.Errorf("%w: %s -> %s", ErrConflict, from, status)
    }
    const upd = `UPDATE reservations SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
    if _, err := tx.ExecContext(ctx, upd, string(status), time.Now().UTC().Format(dbTimeLayout), tenantID, id); err != nil {
        return nil, err
    }
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE tenant_id = ? AND id = ?`
    raw, err := scanReservation(tx.QueryRowContext(ctx, q, tenantID, id))
    if err != nil {
        return nil, err
    }
    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return &raw, nil
}

// Delete removes a reservation.  It returns ErrNotFound when nothing was
// deleted.
func (r *ReservationRepo) Delete(ctx context.Context, tenantID, id string) error {
    res, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE tenant_id = ? AND id = ?`, tenantID, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}

func scanReservation(row rowScanner) (model.RawReservation, error) {
    var raw model.RawReservation
    var name, phone, plate, date, endDate sql.NullString
    var startTime, endTime, station, status sql.NullString
    var serviceIDs, serviceItems, original sql.NullString
    var notes, source, createdBy sql.NullString
    var confirmSMS, reminderSMS, photos sql.NullString
    var createdAt, updatedAt sql.NullString
    if err := row.Scan(
        &raw.ID, &raw.TenantID, &name, &phone, &plate,
        &date, &endDate, &startTime, &endTime, &station, &status,
        &serviceIDs, &serviceItems, &original, &notes, &source, &createdBy,
        &confirmSMS, &reminderSMS, &photos, &createdAt, &updatedAt,
    ); err != nil {
        return model.RawReservation{}, err
    }
    raw.CustomerName = nullable(name)
    raw.CustomerPhone = nullable(phone)
    raw.VehiclePlate = nullable(plate)
    raw.ReservationDate = nullable(date)
    raw.EndDate = nullable(endDate)
    raw.StartTime = nullable(startTime)
    raw.EndTime = nullable(endTime)
    raw.StationID = nullable(station)
    raw.Status = nullable(status)
    raw.ServiceIDs = decodeStrings(serviceIDs)
    raw.ServiceItems = decodeItems(serviceItems)
    raw.OriginalReservationID = nullable(original)
    raw.Notes = nullable(notes)
    raw.Source = nullable(source)
    raw.CreatedBy = nullable(createdBy)
    raw.ConfirmationSMSSentAt = nullable(confirmSMS)
    raw.ReminderSMSSentAt = nullable(reminderSMS)
    raw.Photos = decodeStrings(photos)
    raw.CreatedAt = nullable(createdAt)
    raw.UpdatedAt = nullable(updatedAt)
    return raw, nil
}

func nullable(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    s := ns.String
    return &s
}

// decodeStrings accepts a JSON array or a comma separated list.  Anything
// unparseable yields nil.
func decodeStrings(ns sql.NullString) []string {
    if !ns.Valid {
        return nil
    }
    s := strings.TrimSpace(ns.String)
    if s == "" || s == "null" {
        return nil
    }
    if strings.HasPrefix(s, "[") {
        var out []string
        if err := json.Unmarshal([]byte(s), &out); err != nil {
            return nil
        }
        return out
    }
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

func decodeItems(ns sql.NullString) []model.RawServiceItem {
    if !ns.Valid || strings.TrimSpace(ns.String) == "" {
        return nil
    }
    var out []model.RawServiceItem
    if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
        return nil
    }
    return out
}

func encodeJSON(v any) (*string, error) {
    switch t := v.(type) {
    case []string:
        if len(t) == 0 {
            return nil, nil
        }
    case []model.RawServiceItem:
        if len(t) == 0 {
            return nil, nil
        }
    }
    b, err := json.Marshal(v)
    if err != nil {
        return nil, fmt.Errorf("encode json column: %w", err)
    }
    s := string(b)
    return &s, nil
}
