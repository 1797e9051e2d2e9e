package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/queue"
	"github.com/gareci/bus-reservation/internal/repository"
)

// PaymentDeps are the collaborators of a PaymentService.
type PaymentDeps struct {
	Tx           Transactor
	Reservations ReservationStore
	Payments     PaymentStore
	Notifier     Notifier // optional
	Log          *logrus.Logger
}

// PaymentService simulates payment of a validated reservation.  A
// successful payment confirms the reservation in the same transaction
// that records the payment.
type PaymentService struct {
	PaymentDeps
	settings
}

func NewPaymentService(deps PaymentDeps, opts ...Option) *PaymentService {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &PaymentService{PaymentDeps: deps, settings: newSettings(opts)}
}

// PaymentResult is the outcome of Pay.
type PaymentResult struct {
	Payment     model.Payment
	Reservation model.Reservation
}

// Pay records a payment attempt by customer for reservation id.  When
// succeed is false the attempt is stored as FAILED and the reservation
// stays VALIDATED until it is paid or expires.
func (s *PaymentService) Pay(ctx context.Context, id uint64, customer model.Identity, succeed bool) (*PaymentResult, error) {
	log := s.Log.WithFields(logrus.Fields{"reservation_id": id, "customer_id": customer.ID})

	var out *PaymentResult
	err := s.withRetry(ctx, log, "pay", func() error {
		out = nil
		return s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			r, err := s.Reservations.GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrReservationNotFound
				}
				return err
			}
			if r.CustomerID != customer.ID {
				return ErrForbidden
			}
			if r.Status != model.StatusValidated {
				return newError(CodePaymentNotAllowed,
					"only validated reservations can be paid (status %s)", r.Status)
			}
			if r.Expired(s.now()) {
				return newError(CodePaymentNotAllowed, "the payment deadline has passed")
			}

			p := model.Payment{
				ReservationID: r.ID,
				AmountCents:   r.TotalPriceCents,
				Status:        model.PaymentPending,
			}
			if err := s.insertWithReference(ctx, &p); err != nil {
				return err
			}

			p.Status = model.PaymentFailed
			if succeed {
				p.Status = model.PaymentSucceeded
				r.Status = model.StatusConfirmed
				r.UpdatedAt = s.now()
				if err := s.Reservations.UpdateStatus(ctx, r); err != nil {
					return err
				}
			}
			if err := s.Payments.UpdateStatus(ctx, p.ID, p.Status); err != nil {
				return err
			}
			out = &PaymentResult{Payment: p, Reservation: *r}
			return nil
		})
	})
	if err != nil {
		log.WithError(err).Info("payment refused")
		return nil, err
	}

	log.WithFields(logrus.Fields{"payment_ref": out.Payment.Reference, "status": out.Payment.Status}).Info("payment processed")
	if out.Payment.Status == model.PaymentSucceeded {
		transitionsTotal.WithLabelValues(string(model.StatusConfirmed)).Inc()
		ev := queue.NewReservationEvent(queue.EventStatusChanged, &out.Reservation, s.now())
		ev.PreviousStatus = string(model.StatusValidated)
		s.Notifier.Notify(ev)
	}
	return out, nil
}

func (s *PaymentService) insertWithReference(ctx context.Context, p *model.Payment) error {
	for i := 0; i < maxReferenceAttempts; i++ {
		ref, err := NewPaymentReference()
		if err != nil {
			return err
		}
		p.Reference = ref
		err = s.Payments.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateReference) {
			return err
		}
	}
	return fmt.Errorf("no unique payment reference after %d attempts", maxReferenceAttempts)
}
