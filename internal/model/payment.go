package model

import "time"

// PaymentStatus is the state of a simulated payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment records one payment attempt for a reservation.
//
// Fields:
//
//	Reference   – unique 20 character payment reference.
//	AmountCents – amount charged, equal to the reservation total.
//	Status      – PENDING while processing, then SUCCEEDED or FAILED.
type Payment struct {
	ID            uint64        `db:"id"`             // payments.id
	ReservationID uint64        `db:"reservation_id"` // payments.reservation_id
	Reference     string        `db:"reference"`      // payments.reference
	AmountCents   int64         `db:"amount_cents"`   // payments.amount_cents
	Status        PaymentStatus `db:"status"`         // payments.status
	CreatedAt     time.Time     `db:"created_at"`     // payments.created_at
	UpdatedAt     time.Time     `db:"updated_at"`     // payments.updated_at
}
