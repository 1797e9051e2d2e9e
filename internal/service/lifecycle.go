package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/queue"
	"github.com/gareci/bus-reservation/internal/repository"
)

// LifecycleDeps are the collaborators of a LifecycleMutator.
type LifecycleDeps struct {
	Tx           Transactor
	Departures   DepartureStore
	Reservations ReservationStore
	Policies     *PolicyResolver
	Notifier     Notifier // optional
	Log          *logrus.Logger
}

// LifecycleMutator applies state transitions to existing reservations.
// Each transition locks the reservation row, checks the transition table
// and writes the new state in one transaction.  Seats are released by
// the state change alone since availability is derived.
type LifecycleMutator struct {
	LifecycleDeps
	settings
}

func NewLifecycleMutator(deps LifecycleDeps, opts ...Option) *LifecycleMutator {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &LifecycleMutator{LifecycleDeps: deps, settings: newSettings(opts)}
}

// MaxRejectionReason is the longest rejection reason, in characters,
// that fits reservations.rejection_reason.
const MaxRejectionReason = 500

// Validate moves a pending reservation to VALIDATED, stamps the staff
// member and restarts the payment deadline from now.  A reservation whose
// deadline has already passed is left for the sweeper.
func (m *LifecycleMutator) Validate(ctx context.Context, id uint64, staff model.Identity) (*model.Reservation, error) {
	if !staff.Staff {
		return nil, ErrStaffRequired
	}
	policy := m.Policies.Active(ctx)
	return m.transition(ctx, id, model.StatusValidated, "", nil, func(_ context.Context, r *model.Reservation) error {
		now := m.now()
		if r.Expired(now) {
			return ErrReservationExpired
		}
		r.ValidatedBy = &staff.ID
		r.ValidatedAt = &now
		r.ExpiresAt = now.Add(policy.PaymentDeadline())
		return nil
	})
}

// Reject moves a pending or validated reservation to REJECTED.
func (m *LifecycleMutator) Reject(ctx context.Context, id uint64, staff model.Identity, reason string) (*model.Reservation, error) {
	if !staff.Staff {
		return nil, ErrStaffRequired
	}
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n > MaxRejectionReason {
		return nil, newError(CodeReasonTooLong,
			"rejection reason is %d characters long, the limit is %d", n, MaxRejectionReason)
	}
	return m.transition(ctx, id, model.StatusRejected, reason, nil, func(_ context.Context, r *model.Reservation) error {
		now := m.now()
		r.ValidatedBy = &staff.ID
		r.ValidatedAt = &now
		if reason != "" {
			r.RejectionReason = &reason
		}
		return nil
	})
}

// Confirm moves a validated reservation to CONFIRMED while its payment
// deadline is still running.
func (m *LifecycleMutator) Confirm(ctx context.Context, id uint64) (*model.Reservation, error) {
	return m.transition(ctx, id, model.StatusConfirmed, "", nil, func(_ context.Context, r *model.Reservation) error {
		if r.Expired(m.now()) {
			return ErrReservationExpired
		}
		return nil
	})
}

// Cancel moves a confirmed reservation to CANCELLED and records the
// cancellation penalty.  Customers may only cancel their own bookings.
func (m *LifecycleMutator) Cancel(ctx context.Context, id uint64, actor model.Identity) (*model.Reservation, error) {
	policy := m.Policies.Active(ctx)
	return m.transition(ctx, id, model.StatusCancelled, "", ownedBy(actor), func(ctx context.Context, r *model.Reservation) error {
		dep, err := m.Departures.GetByID(ctx, r.DepartureID)
		if err != nil {
			return fmt.Errorf("load departure %d: %w", r.DepartureID, err)
		}
		penalty := Penalty(r.TotalPriceCents, dep.DepartsAt(r.TravelDate, m.loc), m.now(), policy)
		r.CancellationPenaltyCents = &penalty
		return nil
	})
}

// Expire moves a pending or validated reservation past its deadline to
// EXPIRED.  It reports false without error when the reservation has
// meanwhile been validated further, paid or had its deadline extended.
func (m *LifecycleMutator) Expire(ctx context.Context, id uint64) (bool, error) {
	expired := false
	_, err := m.transition(ctx, id, model.StatusExpired, "", nil, func(_ context.Context, r *model.Reservation) error {
		if !r.Expired(m.now()) {
			return errNotDue
		}
		expired = true
		return nil
	})
	if errors.Is(err, errNotDue) || errors.Is(err, ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return expired, nil
}

// PenaltyQuote returns the penalty the customer would pay by cancelling now.
func (m *LifecycleMutator) PenaltyQuote(ctx context.Context, id uint64, actor model.Identity) (int64, error) {
	r, err := m.Reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrReservationNotFound
		}
		return 0, err
	}
	if err := ownedBy(actor)(r); err != nil {
		return 0, err
	}
	if r.Status != model.StatusConfirmed {
		return 0, invalidTransition(r.Status, model.StatusCancelled)
	}
	dep, err := m.Departures.GetByID(ctx, r.DepartureID)
	if err != nil {
		return 0, fmt.Errorf("load departure %d: %w", r.DepartureID, err)
	}
	return Penalty(r.TotalPriceCents, dep.DepartsAt(r.TravelDate, m.loc), m.now(), m.Policies.Active(ctx)), nil
}

var errNotDue = errors.New("reservation not due for expiry")

// ownedBy lets staff act on any reservation and customers on their own.
func ownedBy(actor model.Identity) func(r *model.Reservation) error {
	return func(r *model.Reservation) error {
		if !actor.Staff && r.CustomerID != actor.ID {
			return ErrForbidden
		}
		return nil
	}
}

// transition locks reservation id, runs guard, checks that to is
// reachable from the current state, applies mutate and persists the
// result.  The customer is notified after commit.
func (m *LifecycleMutator) transition(
	ctx context.Context,
	id uint64,
	to model.ReservationStatus,
	reason string,
	guard func(r *model.Reservation) error,
	mutate func(ctx context.Context, r *model.Reservation) error,
) (*model.Reservation, error) {
	log := m.Log.WithFields(logrus.Fields{"reservation_id": id, "to": to})

	var (
		res  *model.Reservation
		from model.ReservationStatus
	)
	err := m.withRetry(ctx, log, "transition_"+strings.ToLower(string(to)), func() error {
		return m.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			r, err := m.Reservations.GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrReservationNotFound
				}
				return err
			}
			if guard != nil {
				if err := guard(r); err != nil {
					return err
				}
			}
			if !r.Status.CanTransitionTo(to) {
				return invalidTransition(r.Status, to)
			}
			if mutate != nil {
				if err := mutate(ctx, r); err != nil {
					return err
				}
			}
			from = r.Status
			r.Status = to
			r.UpdatedAt = m.now()
			if err := m.Reservations.UpdateStatus(ctx, r); err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, errNotDue) {
			log.WithError(err).Info("transition refused")
		}
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	log.WithField("from", from).Info("reservation status changed")
	ev := queue.NewReservationEvent(queue.EventStatusChanged, res, m.now())
	ev.PreviousStatus = string(from)
	ev.Reason = reason
	m.Notifier.Notify(ev)
	return res, nil
}
