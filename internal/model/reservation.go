package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPendingValidation ReservationStatus = "PENDING_VALIDATION"
	StatusValidated         ReservationStatus = "VALIDATED"
	StatusConfirmed         ReservationStatus = "CONFIRMED"
	StatusRejected          ReservationStatus = "REJECTED"
	StatusExpired           ReservationStatus = "EXPIRED"
	StatusCancelled         ReservationStatus = "CANCELLED"
)

// transitions lists, for each state, the states it may move to.  A state
// missing from the map (or mapped to nothing) is terminal.
var transitions = map[ReservationStatus][]ReservationStatus{
	StatusPendingValidation: {StatusValidated, StatusRejected, StatusExpired},
	StatusValidated:         {StatusConfirmed, StatusRejected, StatusExpired},
	StatusConfirmed:         {StatusCancelled},
}

// ActiveStatuses are the states whose seats count against capacity.
var ActiveStatuses = []ReservationStatus{StatusPendingValidation, StatusValidated, StatusConfirmed}

// Valid reports whether s is one of the known states.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPendingValidation, StatusValidated, StatusConfirmed,
		StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a reservation in state s holds seats.
func (s ReservationStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s ReservationStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation is one customer's booking of SeatCount seats on a
// departure for a specific travel date.
//
// Fields:
//
//	ID                       – primary key identifier.
//	Reference                – unique 12 character code shown to customers.
//	CustomerID               – user who owns the reservation.
//	DepartureID              – departure being booked.
//	TravelDate               – calendar date of travel (DATE column).
//	SeatCount                – number of seats, at least one.
//	TotalPriceCents          – price for all seats in cents.
//	Status                   – lifecycle state.
//	ExpiresAt                – payment deadline; pending/validated rows
//	                           past it are expired by the sweep.
//	RejectionReason          – staff reason when rejected.
//	ValidatedBy, ValidatedAt – staff member and time of validate/reject.
//	CancellationPenaltyCents – penalty computed at cancellation.
//	CreatedAt, UpdatedAt     – timestamps.
type Reservation struct {
	ID                       uint64            `db:"id"`                         // reservations.id
	Reference                string            `db:"reference"`                  // reservations.reference
	CustomerID               uint64            `db:"customer_id"`                // reservations.customer_id
	DepartureID              uint64            `db:"departure_id"`               // reservations.departure_id
	TravelDate               time.Time         `db:"travel_date"`                // reservations.travel_date
	SeatCount                int               `db:"seat_count"`                 // reservations.seat_count
	TotalPriceCents          int64             `db:"total_price_cents"`          // reservations.total_price_cents
	Status                   ReservationStatus `db:"status"`                     // reservations.status
	ExpiresAt                time.Time         `db:"expires_at"`                 // reservations.expires_at
	RejectionReason          *string           `db:"rejection_reason"`           // reservations.rejection_reason (nullable)
	ValidatedBy              *uint64           `db:"validated_by"`               // reservations.validated_by (nullable)
	ValidatedAt              *time.Time        `db:"validated_at"`               // reservations.validated_at (nullable)
	CancellationPenaltyCents *int64            `db:"cancellation_penalty_cents"` // reservations.cancellation_penalty_cents (nullable)
	CreatedAt                time.Time         `db:"created_at"`                 // reservations.created_at
	UpdatedAt                time.Time         `db:"updated_at"`                 // reservations.updated_at
}

// Expired reports whether the payment deadline has passed at now.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
