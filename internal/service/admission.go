package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/queue"
	"github.com/gareci/bus-reservation/internal/repository"
)

// maxReferenceAttempts bounds regeneration after reference collisions.
const maxReferenceAttempts = 5

// CreateInput is a booking request.
type CreateInput struct {
	DepartureID uint64
	TravelDate  time.Time
	CustomerID  uint64
	SeatCount   int
}

// AdmissionDeps are the collaborators of an AdmissionController.
type AdmissionDeps struct {
	Tx           Transactor
	Departures   DepartureStore
	Reservations ReservationStore
	Policies     *PolicyResolver
	Availability *AvailabilityCalculator
	Staff        StaffDirectory // optional
	Notifier     Notifier       // optional
	Log          *logrus.Logger
}

// AdmissionController validates booking requests and inserts them
// without overbooking.  Checks run in a fixed order and the first
// failure is returned, so a given request always gets the same error.
type AdmissionController struct {
	AdmissionDeps
	settings
}

func NewAdmissionController(deps AdmissionDeps, opts ...Option) *AdmissionController {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &AdmissionController{AdmissionDeps: deps, settings: newSettings(opts)}
}

// Create admits a reservation.  The departure row is locked for the
// capacity check and the insert, which share one transaction; requests
// for other departures are not blocked.  Deadlocks and lock wait
// timeouts retry the whole transaction.
func (c *AdmissionController) Create(ctx context.Context, in CreateInput) (*model.Reservation, error) {
	in.TravelDate = civilDate(in.TravelDate)
	log := c.Log.WithFields(logrus.Fields{
		"departure_id": in.DepartureID,
		"travel_date":  in.TravelDate.Format("2006-01-02"),
		"customer_id":  in.CustomerID,
		"seats":        in.SeatCount,
	})

	// Resolved outside the transaction so a default policy created on
	// first access does not roll back with a refused request.
	policy := c.Policies.Active(ctx)

	var res *model.Reservation
	err := c.withRetry(ctx, log, "create_reservation", func() error {
		res = nil
		return c.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, err = c.admit(ctx, in, policy)
			return err
		})
	})
	if err != nil {
		if code := CodeOf(err); code != "" {
			admissionRejections.WithLabelValues(string(code)).Inc()
			log.WithField("code", code).Info("reservation refused")
		} else {
			log.WithError(err).Error("reservation failed")
		}
		return nil, err
	}

	admissionsTotal.Inc()
	log.WithFields(logrus.Fields{"reservation_id": res.ID, "reference": res.Reference}).Info("reservation created")
	c.notifyStaff(ctx, res)
	return res, nil
}

func (c *AdmissionController) admit(ctx context.Context, in CreateInput, policy model.Policy) (*model.Reservation, error) {
	now := c.now()

	// 1. departure exists and is active
	dep, err := c.Departures.GetByID(ctx, in.DepartureID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDepartureNotFound
		}
		return nil, fmt.Errorf("load departure: %w", err)
	}
	if !dep.Active {
		return nil, ErrDepartureInactive
	}

	// 2. departure instant is in the future
	departsAt := dep.DepartsAt(in.TravelDate, c.loc)
	if !departsAt.After(now) {
		return nil, newError(CodePastDeparture, "cannot book a departure in the past (%s)",
			departsAt.Format("2006-01-02 15:04"))
	}

	// 3. booking window has opened
	if days := daysBetween(now.In(c.loc), in.TravelDate); days > policy.MaxAdvanceDays {
		opens := in.TravelDate.AddDate(0, 0, -policy.MaxAdvanceDays)
		return nil, newError(CodeBookingWindowNotOpen,
			"bookings for this departure open on %s", opens.Format("2006-01-02"))
	}

	// 4. booking window has not closed
	if hours := departsAt.Sub(now).Hours(); hours < float64(policy.MinAdvanceHours) {
		return nil, newError(CodeBookingWindowClosed,
			"bookings close %dh before departure", policy.MinAdvanceHours)
	}

	// 5. seat count within bounds
	if in.SeatCount < 1 || in.SeatCount > policy.MaxSeatsPerReservation {
		return nil, newError(CodeSeatCountInvalid,
			"seat count must be between 1 and %d", policy.MaxSeatsPerReservation)
	}

	// 6. customer quota
	active, err := c.Reservations.CountActiveByCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if active >= policy.MaxActivePerCustomer {
		return nil, newError(CodeCustomerQuotaExceeded,
			"you already have %d active reservations", policy.MaxActivePerCustomer)
	}

	// 7. capacity, under the departure row lock
	stillActive, err := c.Departures.LockForUpdate(ctx, dep.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDepartureNotFound
		}
		return nil, fmt.Errorf("lock departure: %w", err)
	}
	if !stillActive {
		return nil, ErrDepartureInactive
	}
	left, err := c.Availability.remaining(ctx, dep, in.TravelDate)
	if err != nil {
		return nil, err
	}
	if left < in.SeatCount {
		return nil, newError(CodeInsufficientCapacity,
			"only %d seat(s) available for this departure on that day", left)
	}

	res := &model.Reservation{
		CustomerID:      in.CustomerID,
		DepartureID:     dep.ID,
		TravelDate:      in.TravelDate,
		SeatCount:       in.SeatCount,
		TotalPriceCents: Price(dep.PriceCents, in.SeatCount, dep.MultiplierPct),
		Status:          model.StatusPendingValidation,
		ExpiresAt:       now.Add(policy.PaymentDeadline()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.insertWithReference(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// insertWithReference inserts res, drawing a fresh reference after each
// unique key collision.
func (c *AdmissionController) insertWithReference(ctx context.Context, res *model.Reservation) error {
	for i := 0; i < maxReferenceAttempts; i++ {
		ref, err := NewReference()
		if err != nil {
			return err
		}
		res.Reference = ref
		err = c.Reservations.Create(ctx, res)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateReference) {
			return err
		}
		c.Log.WithField("reference", ref).Warn("reservation reference collision, regenerating")
	}
	return fmt.Errorf("no unique reference after %d attempts", maxReferenceAttempts)
}

func (c *AdmissionController) notifyStaff(ctx context.Context, res *model.Reservation) {
	ev := queue.NewReservationEvent(queue.EventReservationCreated, res, c.now())
	if c.Staff != nil {
		emails, err := c.Staff.ListStaffEmails(ctx)
		if err != nil {
			c.Log.WithError(err).Warn("could not load staff recipients")
		}
		ev.Recipients = emails
	}
	c.Notifier.Notify(ev)
}
