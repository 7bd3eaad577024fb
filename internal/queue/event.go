// Package queue defines the reservation change feed: the event payload
// exchanged over the message broker and the subscription contract used by
// the synchronization layer.
package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/reservation-sync/internal/model"
)

// EventType is the kind of change carried by a ChangeEvent.
type EventType string

const (
    EventInsert EventType = "insert"
    EventUpdate EventType = "update"
    EventDelete EventType = "delete"
)

// ChangeEvent is published whenever a reservation row changes.  Record may
// be partial; consumers re-read the full row by ID when they need it.
type ChangeEvent struct {
    EventID    string               `json:"event_id"`
    TenantID   string               `json:"tenant_id"`
    Type       EventType            `json:"type"`
    Record     model.RawReservation `json:"record"`
    OccurredAt time.Time            `json:"occurred_at"`
}

// NewChangeEvent stamps a fresh event for record.
func NewChangeEvent(tenantID string, typ EventType, record model.RawReservation) ChangeEvent {
    if record.TenantID == "" {
        record.TenantID = tenantID
    }
    return ChangeEvent{
        EventID:    uuid.NewString(),
        TenantID:   tenantID,
        Type:       typ,
        Record:     record,
        OccurredAt: time.Now().UTC(),
    }
}

// DecodeChangeEvent parses a broker payload.  Unknown event types are
// rejected; missing record fields are tolerated.
func DecodeChangeEvent(body []byte) (ChangeEvent, error) {
    var ev ChangeEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return ChangeEvent{}, fmt.Errorf("unmarshal: %w", err)
    }
    switch ev.Type {
    case EventInsert, EventUpdate, EventDelete:
    default:
        return ChangeEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
    }
    if ev.Record.ID == "" {
        return ChangeEvent{}, fmt.Errorf("event %s has no record id", ev.EventID)
    }
    if ev.Record.TenantID == "" {
        ev.Record.TenantID = ev.TenantID
    }
    return ev, nil
}

// Status is a subscription lifecycle transition.
type Status string

const (
    StatusSubscribed Status = "subscribed"
    StatusClosed     Status = "closed"
    StatusError      Status = "error"
)

// Handlers receives events and lifecycle transitions for one subscription.
// OnEvent is invoked from a single goroutine per subscription, in delivery
// order.  Both callbacks are optional.
type Handlers struct {
    OnEvent  func(ChangeEvent)
    OnStatus func(Status, error)
}

func (h Handlers) event(ev ChangeEvent) {
    if h.OnEvent != nil {
        h.OnEvent(ev)
    }
}

func (h Handlers) status(s Status, err error) {
    if h.OnStatus != nil {
        h.OnStatus(s, err)
    }
}

// Subscription is a live tenant-scoped feed.  Close tears it down without
// reporting StatusClosed.
type Subscription interface {
    Close() error
}

// Feed opens tenant-scoped subscriptions.
type Feed interface {
    Subscribe(ctx context.Context, tenantID string, h Handlers) (Subscription, error)
}

// Publisher emits change events for a tenant.
type Publisher interface {
    Publish(ctx context.Context, ev ChangeEvent) error
}
