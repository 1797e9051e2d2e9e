// Package queue defines the reservation events exchanged over the message
// broker, together with the publisher, dispatcher and consumer that move
// them between the API server and the notifier.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/gareci/bus-reservation/internal/model"
)

// QueueName is the durable queue carrying ReservationEvent messages.
const QueueName = "reservation.events"

// EventType names what happened to a reservation.
type EventType string

const (
	EventReservationCreated EventType = "reservation.created"
	EventStatusChanged      EventType = "reservation.status_changed"
	EventTripReminder       EventType = "reservation.trip_reminder"
)

// ReservationEvent is published after a reservation changes.  It carries
// enough data for the notifier to write a message without querying the
// primary database.
type ReservationEvent struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	ReservationID   uint64    `json:"reservation_id"`
	Reference       string    `json:"reference"`
	CustomerID      uint64    `json:"customer_id"`
	DepartureID     uint64    `json:"departure_id"`
	TravelDate      string    `json:"travel_date"`
	SeatCount       int       `json:"seat_count"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	PenaltyCents    *int64    `json:"penalty_cents,omitempty"`
	DepartsAt       string    `json:"departs_at,omitempty"`
	Recipients      []string  `json:"recipients,omitempty"`
	OccurredAt      string    `json:"occurred_at"`
}

// NewReservationEvent builds an event of type t from the current state of r.
func NewReservationEvent(t EventType, r *model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		ID:              uuid.NewString(),
		Type:            t,
		ReservationID:   r.ID,
		Reference:       r.Reference,
		CustomerID:      r.CustomerID,
		DepartureID:     r.DepartureID,
		TravelDate:      r.TravelDate.Format("2006-01-02"),
		SeatCount:       r.SeatCount,
		TotalPriceCents: r.TotalPriceCents,
		Status:          string(r.Status),
		PenaltyCents:    r.CancellationPenaltyCents,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	}
}
