package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/repository"
)

// AvailabilityCalculator derives remaining seats from the live ledger.
// Nothing is cached: cancelled, rejected and expired reservations free
// their seats simply by leaving the active states.
type AvailabilityCalculator struct {
	departures   DepartureStore
	reservations ReservationStore
	log          *logrus.Logger
}

func NewAvailabilityCalculator(departures DepartureStore, reservations ReservationStore, log *logrus.Logger) *AvailabilityCalculator {
	return &AvailabilityCalculator{departures: departures, reservations: reservations, log: log}
}

// RemainingSeats returns capacity minus seats held by active reservations
// for the departure on travelDate.
func (a *AvailabilityCalculator) RemainingSeats(ctx context.Context, departureID uint64, travelDate time.Time) (int, error) {
	dep, err := a.departures.GetByID(ctx, departureID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrDepartureNotFound
		}
		return 0, fmt.Errorf("load departure %d: %w", departureID, err)
	}
	return a.remaining(ctx, dep, civilDate(travelDate))
}

// remaining computes availability for an already loaded departure.  Run
// it after locking the departure row when the result gates an insert.
func (a *AvailabilityCalculator) remaining(ctx context.Context, dep *model.Departure, travelDate time.Time) (int, error) {
	held, err := a.reservations.SumActiveSeats(ctx, dep.ID, travelDate)
	if err != nil {
		return 0, err
	}
	left := dep.Capacity - held
	if left < 0 {
		a.log.WithFields(logrus.Fields{
			"departure_id": dep.ID,
			"travel_date":  travelDate.Format("2006-01-02"),
			"capacity":     dep.Capacity,
			"held":         held,
		}).Error("active reservations exceed bus capacity")
		return 0, newError(CodeCapacityInvariant,
			"departure %d on %s holds %d seats for a capacity of %d",
			dep.ID, travelDate.Format("2006-01-02"), held, dep.Capacity)
	}
	return left, nil
}
