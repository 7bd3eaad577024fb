package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/iliyamo/reservation-sync/internal/model"
)

// ServiceRepo reads the tenant's live service catalog.
type ServiceRepo struct {
    db *sql.DB
}

// NewServiceRepo returns a new ServiceRepo bound to the given database.
func NewServiceRepo(db *sql.DB) *ServiceRepo { return &ServiceRepo{db: db} }

// ListByTenant returns every service the tenant offers keyed by id.  A
// tenant without services yields an empty, non-nil catalog.
func (r *ServiceRepo) ListByTenant(ctx context.Context, tenantID string) (model.ServiceCatalog, error) {
    const q = `SELECT id, name, shortcut, price_small, price_medium, price_large
               FROM services WHERE tenant_id = ?`
    rows, err := r.db.QueryContext(ctx, q, tenantID)
    if err != nil {
        return nil, fmt.Errorf("query services: %w", err)
    }
    defer rows.Close()

    out := model.ServiceCatalog{}
    for rows.Next() {
        var s model.ServiceInfo
        var shortcut sql.NullString
        var small, medium, large sql.NullFloat64
        if err := rows.Scan(&s.ID, &s.Name, &shortcut, &small, &medium, &large); err != nil {
            return nil, err
        }
        s.Shortcut = nullable(shortcut)
        s.PriceSmall = nullableFloat(small)
        s.PriceMedium = nullableFloat(medium)
        s.PriceLarge = nullableFloat(large)
        out[s.ID] = s
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// Upsert creates or replaces a service entry.
func (r *ServiceRepo) Upsert(ctx context.Context, tenantID string, s model.ServiceInfo) error {
    if _, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, s.ID); err != nil {
        return err
    }
    const q = `INSERT INTO services (id, tenant_id, name, shortcut, price_small, price_medium, price_large)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    _, err := r.db.ExecContext(ctx, q, s.ID, tenantID, s.Name, s.Shortcut, s.PriceSmall, s.PriceMedium, s.PriceLarge)
    return err
}

func nullableFloat(nf sql.NullFloat64) *float64 {
    if !nf.Valid {
        return nil
    }
    v := nf.Float64
    return &v
}
