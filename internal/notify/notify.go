// Package notify delivers "new customer reservation" alerts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/reservation-sync/internal/model"
)

// Notifier is told about reservations booked by customers.
type Notifier interface {
	NewCustomerReservation(ctx context.Context, r model.Reservation) error
}

// Log writes alerts to a structured logger.
type Log struct {
	Logger *slog.Logger
}

// NewCustomerReservation implements Notifier.
func (l Log) NewCustomerReservation(ctx context.Context, r model.Reservation) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "new customer reservation",
		"tenant", r.TenantID, "id", r.ID, "date", r.Date.Format("2006-01-02"))
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

// NewCustomerReservation implements Notifier.
func (m Multi) NewCustomerReservation(ctx context.Context, r model.Reservation) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NewCustomerReservation(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message renders the alert text shared by chat notifiers.
func Message(r model.Reservation) string {
	var b strings.Builder
	b.WriteString("New customer reservation")
	if !r.Date.IsZero() {
		fmt.Fprintf(&b, " on %s", r.Date.Format("2006-01-02"))
	}
	if r.StartTime != nil {
		fmt.Fprintf(&b, " at %s", *r.StartTime)
	}
	if r.CustomerName != nil && *r.CustomerName != "" {
		fmt.Fprintf(&b, "\nCustomer: %s", *r.CustomerName)
	}
	if r.VehiclePlate != nil && *r.VehiclePlate != "" {
		fmt.Fprintf(&b, "\nVehicle: %s", *r.VehiclePlate)
	}
	if len(r.Services) > 0 {
		names := make([]string, 0, len(r.Services))
		for _, s := range r.Services {
			names = append(names, s.Name)
		}
		fmt.Fprintf(&b, "\nServices: %s", strings.Join(names, ", "))
	}
	return b.String()
}
