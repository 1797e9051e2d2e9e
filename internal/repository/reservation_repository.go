package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/model"
)

// ReservationRepo is the reservation ledger.  Remaining capacity is never
// stored; it is aggregated from this table at call time.  All timestamp
// columns are stored in UTC and travel_date is a DATE.
type ReservationRepo struct {
	db *sqlx.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sqlx.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const dateLayout = "2006-01-02"

const reservationColumns = `id, reference, customer_id, departure_id, travel_date, seat_count,
       total_price_cents, status, expires_at, rejection_reason, validated_by, validated_at,
       cancellation_penalty_cents, created_at, updated_at`

func statusArgs(statuses []model.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// expirable are the states the sweep may move to EXPIRED.
var expirable = []model.ReservationStatus{model.StatusPendingValidation, model.StatusValidated}

// SumActiveSeats returns the seats held by active reservations on the
// departure for the given travel date.
func (r *ReservationRepo) SumActiveSeats(ctx context.Context, departureID uint64, travelDate time.Time) (int, error) {
	q, args, err := sqlx.In(
		`SELECT COALESCE(SUM(seat_count), 0) FROM reservations
		 WHERE departure_id = ? AND travel_date = ? AND status IN (?)`,
		departureID, travelDate.Format(dateLayout), statusArgs(model.ActiveStatuses))
	if err != nil {
		return 0, err
	}
	conn := database.Conn(ctx, r.db)
	var total int
	if err := conn.GetContext(ctx, &total, conn.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("sum active seats: %w", err)
	}
	return total, nil
}

// CountActiveByCustomer returns how many active reservations the
// customer holds across all departures and dates.
func (r *ReservationRepo) CountActiveByCustomer(ctx context.Context, customerID uint64) (int, error) {
	q, args, err := sqlx.In(
		`SELECT COUNT(*) FROM reservations WHERE customer_id = ? AND status IN (?)`,
		customerID, statusArgs(model.ActiveStatuses))
	if err != nil {
		return 0, err
	}
	conn := database.Conn(ctx, r.db)
	var n int
	if err := conn.GetContext(ctx, &n, conn.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return n, nil
}

// Create inserts a reservation and sets its ID.  A unique key collision
// on the reference is reported as ErrDuplicateReference; MySQL rolls
// back only the failed statement, so the caller's transaction and its
// locks stay usable for a retry with a new reference.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(reference, customer_id, departure_id, travel_date, seat_count, total_price_cents, status, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		res.Reference, res.CustomerID, res.DepartureID, res.TravelDate.Format(dateLayout),
		res.SeatCount, res.TotalPriceCents, string(res.Status), res.ExpiresAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetByID loads a reservation without locking it.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	err := database.Conn(ctx, r.db).GetContext(ctx, &res,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

// GetByReference loads a reservation by its public reference.
func (r *ReservationRepo) GetByReference(ctx context.Context, reference string) (*model.Reservation, error) {
	var res model.Reservation
	err := database.Conn(ctx, r.db).GetContext(ctx, &res,
		`SELECT `+reservationColumns+` FROM reservations WHERE reference = ?`, reference)
	if err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

// GetForUpdate loads a reservation and locks its row until the
// surrounding transaction ends.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Reservation, error) {
	if !database.InTx(ctx) {
		return nil, fmt.Errorf("lock reservation %d: no transaction in context", id)
	}
	var res model.Reservation
	err := database.Conn(ctx, r.db).GetContext(ctx, &res,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

// UpdateStatus writes the mutable lifecycle columns of res.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, res *model.Reservation) error {
	const q = `UPDATE reservations
		SET status = ?, expires_at = ?, rejection_reason = ?, validated_by = ?, validated_at = ?,
		    cancellation_penalty_cents = ?
		WHERE id = ?`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, q,
		string(res.Status), res.ExpiresAt.UTC(), res.RejectionReason, res.ValidatedBy,
		utcPtr(res.ValidatedAt), res.CancellationPenaltyCents, res.ID)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", res.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired returns up to limit ids of pending or validated
// reservations whose payment deadline is before now, oldest first.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	q, args, err := sqlx.In(
		`SELECT id FROM reservations WHERE status IN (?) AND expires_at < ? ORDER BY id LIMIT ?`,
		statusArgs(expirable), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	conn := database.Conn(ctx, r.db)
	ids := []uint64{}
	if err := conn.SelectContext(ctx, &ids, conn.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return ids, nil
}

// ListConfirmedForDate returns confirmed reservations travelling on date.
func (r *ReservationRepo) ListConfirmedForDate(ctx context.Context, travelDate time.Time) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := database.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+reservationColumns+` FROM reservations WHERE status = ? AND travel_date = ? ORDER BY id`,
		string(model.StatusConfirmed), travelDate.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list confirmed reservations: %w", err)
	}
	return out, nil
}

// ListByCustomer returns the customer's reservations, newest first.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := database.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+reservationColumns+` FROM reservations WHERE customer_id = ? ORDER BY created_at DESC, id DESC`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer reservations: %w", err)
	}
	return out, nil
}

// ListByDeparture returns every reservation on a departure for a date.
func (r *ReservationRepo) ListByDeparture(ctx context.Context, departureID uint64, travelDate time.Time) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := database.Conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+reservationColumns+` FROM reservations WHERE departure_id = ? AND travel_date = ? ORDER BY id`,
		departureID, travelDate.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list departure reservations: %w", err)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
