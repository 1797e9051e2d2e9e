package service

import (
	"context"
	"time"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/queue"
)

// Transactor runs fn inside one storage transaction carried by ctx.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DepartureStore is the catalog lookup.  Lookups of unknown ids return
// repository.ErrNotFound.
type DepartureStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Departure, error)
	// LockForUpdate locks the departure row until the transaction in ctx
	// ends and reports whether it is still active.
	LockForUpdate(ctx context.Context, id uint64) (bool, error)
}

// ReservationStore is the reservation ledger.
type ReservationStore interface {
	SumActiveSeats(ctx context.Context, departureID uint64, travelDate time.Time) (int, error)
	CountActiveByCustomer(ctx context.Context, customerID uint64) (int, error)
	Create(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByReference(ctx context.Context, reference string) (*model.Reservation, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, r *model.Reservation) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	ListConfirmedForDate(ctx context.Context, travelDate time.Time) ([]model.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error)
	ListByDeparture(ctx context.Context, departureID uint64, travelDate time.Time) ([]model.Reservation, error)
}

// PolicyStore persists policies.  GetActive returns the active row with
// the lowest id, or repository.ErrNotFound.
type PolicyStore interface {
	GetActive(ctx context.Context) (*model.Policy, error)
	Create(ctx context.Context, p *model.Policy) error
	Replace(ctx context.Context, p *model.Policy) error
}

// PaymentStore persists payment attempts.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	UpdateStatus(ctx context.Context, id uint64, status model.PaymentStatus) error
	ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error)
}

// StaffDirectory lists who receives new-reservation notices.
type StaffDirectory interface {
	ListStaffEmails(ctx context.Context) ([]string, error)
}

// Notifier is the best-effort notification sink.  Notify must not block.
type Notifier interface {
	Notify(ev queue.ReservationEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(queue.ReservationEvent) {}
