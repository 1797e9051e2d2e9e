package model

import (
	"errors"
	"time"
)

// Policy is the admission-control configuration.  Exactly one row is
// meant to be active; when several are, the lowest ID wins.
//
// Fields:
//
//	MaxAdvanceDays         – bookings open this many days before travel.
//	MinAdvanceHours        – bookings close this many hours before departure.
//	MaxSeatsPerReservation – upper bound on seats in one reservation.
//	MaxActivePerCustomer   – cap on a customer's active reservations.
//	FreeCancellationHours  – cancellations at least this early are free.
//	CancellationPenaltyPct – penalty in percent of the total otherwise.
//	PaymentDeadlineMinutes – time a customer has to pay.
type Policy struct {
	ID                     uint64    `db:"id" json:"id"`                                             // reservation_policies.id
	MaxAdvanceDays         int       `db:"max_advance_days" json:"max_advance_days"`                 // reservation_policies.max_advance_days
	MinAdvanceHours        int       `db:"min_advance_hours" json:"min_advance_hours"`               // reservation_policies.min_advance_hours
	MaxSeatsPerReservation int       `db:"max_seats_per_reservation" json:"max_seats_per_reservation"` // reservation_policies.max_seats_per_reservation
	MaxActivePerCustomer   int       `db:"max_active_per_customer" json:"max_active_per_customer"`   // reservation_policies.max_active_per_customer
	FreeCancellationHours  int       `db:"free_cancellation_hours" json:"free_cancellation_hours"`   // reservation_policies.free_cancellation_hours
	CancellationPenaltyPct int       `db:"cancellation_penalty_pct" json:"cancellation_penalty_pct"` // reservation_policies.cancellation_penalty_pct
	PaymentDeadlineMinutes int       `db:"payment_deadline_minutes" json:"payment_deadline_minutes"` // reservation_policies.payment_deadline_minutes
	Active                 bool      `db:"active" json:"active"`                                     // reservation_policies.active
	CreatedAt              time.Time `db:"created_at" json:"created_at"`                             // reservation_policies.created_at
}

// DefaultPolicy returns the values used when no policy row exists.
func DefaultPolicy() Policy {
	return Policy{
		MaxAdvanceDays:         90,
		MinAdvanceHours:        2,
		MaxSeatsPerReservation: 10,
		MaxActivePerCustomer:   5,
		FreeCancellationHours:  24,
		CancellationPenaltyPct: 20,
		PaymentDeadlineMinutes: 30,
		Active:                 true,
	}
}

// PaymentDeadline is the payment window as a duration.
func (p Policy) PaymentDeadline() time.Duration {
	return time.Duration(p.PaymentDeadlineMinutes) * time.Minute
}

// Validate checks the bounds staff may configure.
func (p Policy) Validate() error {
	switch {
	case p.MaxAdvanceDays < 0:
		return errors.New("max_advance_days must not be negative")
	case p.MinAdvanceHours < 0:
		return errors.New("min_advance_hours must not be negative")
	case p.MaxSeatsPerReservation < 1:
		return errors.New("max_seats_per_reservation must be at least 1")
	case p.MaxActivePerCustomer < 1:
		return errors.New("max_active_per_customer must be at least 1")
	case p.FreeCancellationHours < 0:
		return errors.New("free_cancellation_hours must not be negative")
	case p.CancellationPenaltyPct < 0 || p.CancellationPenaltyPct > 100:
		return errors.New("cancellation_penalty_pct must be between 0 and 100")
	case p.PaymentDeadlineMinutes < 1:
		return errors.New("payment_deadline_minutes must be at least 1")
	}
	return nil
}
