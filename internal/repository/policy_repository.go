package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/model"
)

// PolicyRepo stores reservation policies.  Business code reads them only
// through the service-level resolver.
type PolicyRepo struct {
	db *sqlx.DB
}

func NewPolicyRepo(db *sqlx.DB) *PolicyRepo { return &PolicyRepo{db: db} }

const policyColumns = `id, max_advance_days, min_advance_hours, max_seats_per_reservation,
       max_active_per_customer, free_cancellation_hours, cancellation_penalty_pct,
       payment_deadline_minutes, active, created_at`

// GetActive returns the active policy with the lowest id, so several
// active rows still resolve deterministically.  ErrNotFound when none.
func (r *PolicyRepo) GetActive(ctx context.Context) (*model.Policy, error) {
	var p model.Policy
	err := database.Conn(ctx, r.db).GetContext(ctx, &p,
		`SELECT `+policyColumns+` FROM reservation_policies WHERE active = 1 ORDER BY id ASC LIMIT 1`)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Create inserts p as a new row and sets its ID.
func (r *PolicyRepo) Create(ctx context.Context, p *model.Policy) error {
	const q = `INSERT INTO reservation_policies
		(max_advance_days, min_advance_hours, max_seats_per_reservation, max_active_per_customer,
		 free_cancellation_hours, cancellation_penalty_pct, payment_deadline_minutes, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		p.MaxAdvanceDays, p.MinAdvanceHours, p.MaxSeatsPerReservation, p.MaxActivePerCustomer,
		p.FreeCancellationHours, p.CancellationPenaltyPct, p.PaymentDeadlineMinutes, p.Active)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Replace deactivates every active policy and inserts p as the only
// active one.  Call it inside a transaction.
func (r *PolicyRepo) Replace(ctx context.Context, p *model.Policy) error {
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE reservation_policies SET active = 0 WHERE active = 1`); err != nil {
		return fmt.Errorf("deactivate policies: %w", err)
	}
	p.Active = true
	return r.Create(ctx, p)
}
