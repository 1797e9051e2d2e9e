package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/model"
)

// DepartureRepo is the catalog lookup used by admission control.  It
// reads departures joined with their bus and the bus category.
type DepartureRepo struct {
	db *sqlx.DB
}

// NewDepartureRepo returns a new DepartureRepo bound to the given database.
func NewDepartureRepo(db *sqlx.DB) *DepartureRepo { return &DepartureRepo{db: db} }

const selectDeparture = `
SELECT d.id, d.trip_id, d.bus_id, d.departure_time, d.arrival_time, d.price_cents, d.active,
       b.capacity, COALESCE(c.price_multiplier_pct, 100) AS multiplier_pct
FROM departures d
JOIN buses b ON b.id = d.bus_id
LEFT JOIN categories c ON c.id = b.category_id`

// GetByID loads a departure with its capacity and price multiplier.  It
// returns ErrNotFound when no departure has the given id.
func (r *DepartureRepo) GetByID(ctx context.Context, id uint64) (*model.Departure, error) {
	var d model.Departure
	err := database.Conn(ctx, r.db).GetContext(ctx, &d, selectDeparture+` WHERE d.id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// LockForUpdate takes an exclusive row lock on the departure and returns
// its current active flag.  Only the departures row is locked; bus and
// category rows stay free.  It must run inside a transaction, otherwise
// the lock is released as soon as the statement ends.
func (r *DepartureRepo) LockForUpdate(ctx context.Context, id uint64) (bool, error) {
	if !database.InTx(ctx) {
		return false, fmt.Errorf("lock departure %d: no transaction in context", id)
	}
	var active bool
	err := database.Conn(ctx, r.db).GetContext(ctx, &active,
		`SELECT active FROM departures WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		return false, notFound(err)
	}
	return active, nil
}
