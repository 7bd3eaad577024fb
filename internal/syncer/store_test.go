package syncer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/iliyamo/reservation-sync/internal/database"
	"github.com/iliyamo/reservation-sync/internal/model"
	"github.com/iliyamo/reservation-sync/internal/queue"
	"github.com/iliyamo/reservation-sync/internal/repository"
)

// sqlHarness runs a Syncer against the SQL repository on an in-memory
// SQLite database.
func sqlHarness(t *testing.T) (*harness, *sql.DB, *repository.ReservationRepo) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.EnsureSchema(context.Background(), db, database.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	repo := repository.NewReservationRepo(db)
	h := newHarness(t, newSource(), nil)
	h.s.src = repo
	return h, db, repo
}

func TestUpdateToPurgedRemovesRecord(t *testing.T) {
	h, db, repo := sqlHarness(t)
	ctx := context.Background()
	if err := repo.Create(ctx, raw("r", "2024-06-10")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.s.LoadInitial(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !sameIDs(h.s.Reservations(), "r") {
		t.Fatalf("unexpected snapshot %v", ids(h.s.Reservations()))
	}

	if _, err := db.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, repository.PurgedStatus, "r"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	h.s.HandleEvent(event(queue.EventUpdate, model.RawReservation{ID: "r"}))

	if got := h.s.Reservations(); len(got) != 0 {
		t.Fatalf("purged record must leave the cache, got %v", ids(got))
	}
	rows, err := repo.Query(ctx, tenant, h.s.State().Window.From, nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows in source, got %d %v", len(rows), err)
	}
}
