package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/repository"
)

// ReservationQueries serves the read-only reservation views.
type ReservationQueries struct {
	reservations ReservationStore
	payments     PaymentStore
}

func NewReservationQueries(reservations ReservationStore, payments PaymentStore) *ReservationQueries {
	return &ReservationQueries{reservations: reservations, payments: payments}
}

// ReservationDetail is a reservation with its payment attempts, oldest
// first.
type ReservationDetail struct {
	Reservation model.Reservation
	Payments    []model.Payment
}

// ForCustomer lists the customer's reservations, newest first.
func (q *ReservationQueries) ForCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
	return q.reservations.ListByCustomer(ctx, customerID)
}

// Get returns reservation id when actor may see it.  Customers asking
// for someone else's booking get ErrReservationNotFound.
func (q *ReservationQueries) Get(ctx context.Context, id uint64, actor model.Identity) (*model.Reservation, error) {
	r, err := q.reservations.GetByID(ctx, id)
	return visibleTo(actor, r, err)
}

// Detail is Get plus the payment attempts.
func (q *ReservationQueries) Detail(ctx context.Context, id uint64, actor model.Identity) (*ReservationDetail, error) {
	r, err := q.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return q.withPayments(ctx, r)
}

// ByReference looks a reservation up by the reference printed on the
// customer's confirmation.  Staff only.
func (q *ReservationQueries) ByReference(ctx context.Context, reference string, staff model.Identity) (*ReservationDetail, error) {
	if !staff.Staff {
		return nil, ErrStaffRequired
	}
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if len(reference) != ReferenceLength {
		return nil, ErrReservationNotFound
	}
	r, err := q.reservations.GetByReference(ctx, reference)
	if r, err = visibleTo(staff, r, err); err != nil {
		return nil, err
	}
	return q.withPayments(ctx, r)
}

// ForDeparture lists every reservation on a departure and travel date.
func (q *ReservationQueries) ForDeparture(ctx context.Context, departureID uint64, travelDate time.Time, staff model.Identity) ([]model.Reservation, error) {
	if !staff.Staff {
		return nil, ErrStaffRequired
	}
	return q.reservations.ListByDeparture(ctx, departureID, civilDate(travelDate))
}

func (q *ReservationQueries) withPayments(ctx context.Context, r *model.Reservation) (*ReservationDetail, error) {
	payments, err := q.payments.ListByReservation(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &ReservationDetail{Reservation: *r, Payments: payments}, nil
}

func visibleTo(actor model.Identity, r *model.Reservation, err error) (*model.Reservation, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	if ownedBy(actor)(r) != nil {
		return nil, ErrReservationNotFound
	}
	return r, nil
}
