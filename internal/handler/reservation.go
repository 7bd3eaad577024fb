package handler

// This file defines the HTTP surface of the reservation synchronizer.
// Reads are served from the tenant's windowed cache.  Status changes and
// deletions are written through the repository, applied to the cache as
// local writes, shielded from their own echo and published on the change
// feed so other instances converge.

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/reservation-sync/internal/middleware"
    "github.com/iliyamo/reservation-sync/internal/model"
    "github.com/iliyamo/reservation-sync/internal/queue"
    "github.com/iliyamo/reservation-sync/internal/repository"
    "github.com/iliyamo/reservation-sync/internal/syncer"
)

// ReservationStore is the write side of the remote reservation source.
type ReservationStore interface {
    Create(ctx context.Context, raw model.RawReservation) error
    QueryByID(ctx context.Context, tenantID, id string) (*model.RawReservation, error)
    UpdateStatus(ctx context.Context, tenantID, id string, status model.Status) (*model.RawReservation, error)
    Delete(ctx context.Context, tenantID, id string) error
}

// SyncerProvider hands out the tenant's synchronizer.
type SyncerProvider interface {
    Get(tenantID string) *syncer.Syncer
}

// ReservationHandler serves /v1/reservations.
type ReservationHandler struct {
    Syncers   SyncerProvider
    Store     ReservationStore
    Publisher queue.Publisher // optional
    Logger    *slog.Logger
}

// NewReservationHandler constructs a ReservationHandler.  Syncers and store
// must be non-nil; publisher may be nil when no feed is configured.
func NewReservationHandler(syncers SyncerProvider, store ReservationStore, publisher queue.Publisher, logger *slog.Logger) *ReservationHandler {
    if syncers == nil || store == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &ReservationHandler{Syncers: syncers, Store: store, Publisher: publisher, Logger: logger}
}

type statusRequest struct {
    Status string `json:"status"`
}

type createRequest struct {
    ID              string   `json:"id"`
    CustomerName    *string  `json:"customer_name"`
    CustomerPhone   *string  `json:"customer_phone"`
    VehiclePlate    *string  `json:"vehicle_plate"`
    ReservationDate string   `json:"reservation_date"`
    EndDate         *string  `json:"end_date"`
    StartTime       *string  `json:"start_time"`
    EndTime         *string  `json:"end_time"`
    StationID       *string  `json:"station_id"`
    ServiceIDs      []string `json:"service_ids"`
    Notes           *string  `json:"notes"`
    Source          *string  `json:"source"`
}

func (h *ReservationHandler) syncerFor(c echo.Context) (*syncer.Syncer, string, error) {
    tenant := middleware.TenantID(c)
    if tenant == "" {
        return nil, "", c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    s := h.Syncers.Get(tenant)
    if s == nil {
        return nil, "", c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "shutting down"})
    }
    return s, tenant, nil
}

// List handles GET /v1/reservations.  It returns the cached window with
// its loading and connectivity flags.
func (h *ReservationHandler) List(c echo.Context) error {
    s, _, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    st := s.State()
    var errMsg any
    if st.Error != nil {
        errMsg = st.Error.Error()
    }
    return c.JSON(http.StatusOK, echo.Map{
        "items":           st.Reservations,
        "count":           len(st.Reservations),
        "is_loading":      st.IsLoading,
        "is_loading_more": st.IsLoadingMore,
        "error":           errMsg,
        "is_connected":    st.IsConnected,
        "window_from":     st.Window.From.Format(time.DateOnly),
    })
}

// LoadMore handles POST /v1/reservations/load-more.  The history load is
// debounced, so the response only acknowledges the trigger.
func (h *ReservationHandler) LoadMore(c echo.Context) error {
    s, _, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    s.LoadMoreReservations()
    return c.JSON(http.StatusAccepted, echo.Map{"status": "scheduled"})
}

// Visible handles POST /v1/reservations/visible?date=YYYY-MM-DD, reported
// by clients as they page through the calendar.
func (h *ReservationHandler) Visible(c echo.Context) error {
    s, _, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    d, perr := time.Parse(time.DateOnly, c.QueryParam("date"))
    if perr != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
    }
    triggered := s.CheckAndLoadMore(d)
    return c.JSON(http.StatusAccepted, echo.Map{"triggered": triggered})
}

// Invalidate handles POST /v1/reservations/invalidate.  The cache is
// discarded and reloaded before responding.
func (h *ReservationHandler) Invalidate(c echo.Context) error {
    s, _, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    if err := s.InvalidateReservations(c.Request().Context()); err != nil {
        if errors.Is(err, syncer.ErrClosed) {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "shutting down"})
        }
        return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to reload reservations"})
    }
    return c.JSON(http.StatusOK, echo.Map{"count": len(s.Reservations())})
}

// Create handles POST /v1/reservations.  The new row is added to the cache
// and announced on the feed; staff is the default provenance.
func (h *ReservationHandler) Create(c echo.Context) error {
    s, tenant, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    var req createRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if _, perr := time.Parse(time.DateOnly, req.ReservationDate); perr != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_date must be YYYY-MM-DD"})
    }
    if strings.TrimSpace(req.ID) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required"})
    }
    source := model.SourceStaff
    if req.Source != nil && *req.Source == model.SourceCustomer {
        source = model.SourceCustomer
    }
    createdBy, _ := c.Get(middleware.ContextUser).(string)
    raw := model.RawReservation{
        ID:              strings.TrimSpace(req.ID),
        TenantID:        tenant,
        CustomerName:    req.CustomerName,
        CustomerPhone:   req.CustomerPhone,
        VehiclePlate:    req.VehiclePlate,
        ReservationDate: &req.ReservationDate,
        EndDate:         req.EndDate,
        StartTime:       req.StartTime,
        EndTime:         req.EndTime,
        StationID:       req.StationID,
        ServiceIDs:      req.ServiceIDs,
        Notes:           req.Notes,
        Source:          &source,
    }
    if createdBy != "" {
        raw.CreatedBy = &createdBy
    }
    ctx := c.Request().Context()
    if err := h.Store.Create(ctx, raw); err != nil {
        h.Logger.Error("create reservation", "tenant", tenant, "id", raw.ID, "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create reservation"})
    }
    stored, err := h.Store.QueryByID(ctx, tenant, raw.ID)
    if err != nil || stored == nil {
        stored = &raw
    }
    r := s.Normalize(ctx, *stored)
    s.UpdateReservationInCache(r)
    s.MarkAsLocallyUpdated(r.ID)
    h.publish(ctx, queue.NewChangeEvent(tenant, queue.EventInsert, *stored))
    return c.JSON(http.StatusCreated, r)
}

// UpdateStatus handles PATCH /v1/reservations/:id/status.  Illegal
// transitions are rejected with 409.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
    s, tenant, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    id := c.Param("id")
    var req statusRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    status, ok := parseStatus(req.Status)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
    }
    ctx := c.Request().Context()
    raw, err := h.Store.UpdateStatus(ctx, tenant, id, status)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        }
        if errors.Is(err, repository.ErrConflict) {
            return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
        }
        h.Logger.Error("update reservation status", "tenant", tenant, "id", id, "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update reservation"})
    }
    r := s.Normalize(ctx, *raw)
    s.UpdateReservationInCache(r)
    s.MarkAsLocallyUpdated(id)
    h.publish(ctx, queue.NewChangeEvent(tenant, queue.EventUpdate, *raw))
    return c.JSON(http.StatusOK, r)
}

// Delete handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
    s, tenant, err := h.syncerFor(c)
    if s == nil {
        return err
    }
    id := c.Param("id")
    ctx := c.Request().Context()
    if err := h.Store.Delete(ctx, tenant, id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        }
        h.Logger.Error("delete reservation", "tenant", tenant, "id", id, "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete reservation"})
    }
    s.RemoveReservationFromCache(id)
    h.publish(ctx, queue.NewChangeEvent(tenant, queue.EventDelete, model.RawReservation{ID: id, TenantID: tenant}))
    return c.NoContent(http.StatusNoContent)
}

// publish announces a committed change.  Failures are logged; the write
// already succeeded and other instances heal on their next refetch.
func (h *ReservationHandler) publish(ctx context.Context, ev queue.ChangeEvent) {
    if h.Publisher == nil {
        return
    }
    if err := h.Publisher.Publish(ctx, ev); err != nil {
        h.Logger.Warn("publish change event", "tenant", ev.TenantID, "id", ev.Record.ID, "error", err)
    }
}

func parseStatus(s string) (model.Status, bool) {
    st := model.Status(strings.ToLower(strings.TrimSpace(s)))
    switch st {
    case model.StatusPending, model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted, model.StatusCancelled:
        return st, true
    }
    return "", false
}
