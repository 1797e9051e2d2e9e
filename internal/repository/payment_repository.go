package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/model"
)

// PaymentRepo stores simulated payment attempts.
type PaymentRepo struct {
	db *sqlx.DB
}

func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a payment and sets its ID.  A reference collision is
// reported as ErrDuplicateReference.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO payments (reservation_id, reference, amount_cents, status) VALUES (?, ?, ?, ?)`,
		p.ReservationID, p.Reference, p.AmountCents, string(p.Status))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// UpdateStatus sets the status of payment id.
func (r *PaymentRepo) UpdateStatus(ctx context.Context, id uint64, status model.PaymentStatus) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", id, err)
	}
	return nil
}

// ListByReservation returns every attempt for a reservation, oldest first.
func (r *PaymentRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.Payment, error) {
	out := []model.Payment{}
	err := database.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT id, reservation_id, reference, amount_cents, status, created_at, updated_at
		 FROM payments WHERE reservation_id = ? ORDER BY id`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}
