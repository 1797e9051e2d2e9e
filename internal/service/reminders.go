package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/queue"
)

const (
	reminderKeyTTL          = 48 * time.Hour
	defaultReminderInterval = time.Hour
)

// OnceMarker records that a keyed action happened.  Mark returns true
// only for the first caller of a key within ttl.
type OnceMarker interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// ReminderService queues a trip reminder for every confirmed reservation
// travelling tomorrow, at most once per reservation.
type ReminderService struct {
	reservations ReservationStore
	departures   DepartureStore
	marker       OnceMarker
	notifier     Notifier
	log          *logrus.Logger
	interval     time.Duration
	settings
}

func NewReminderService(reservations ReservationStore, departures DepartureStore, marker OnceMarker, notifier Notifier, log *logrus.Logger, interval time.Duration, opts ...Option) *ReminderService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if interval <= 0 {
		interval = defaultReminderInterval
	}
	return &ReminderService{
		reservations: reservations,
		departures:   departures,
		marker:       marker,
		notifier:     notifier,
		log:          log,
		interval:     interval,
		settings:     newSettings(opts),
	}
}

// SendDue queues reminders for tomorrow's confirmed reservations and
// returns how many were queued.  Without a marker, or when the marker
// errors, reminders are sent anyway; a duplicate beats a missing one.
func (s *ReminderService) SendDue(ctx context.Context) (int, error) {
	tomorrow := s.today().AddDate(0, 0, 1)
	list, err := s.reservations.ListConfirmedForDate(ctx, tomorrow)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range list {
		r := &list[i]
		if s.marker != nil {
			first, err := s.marker.Mark(ctx, fmt.Sprintf("reminder:%d", r.ID), reminderKeyTTL)
			if err != nil {
				s.log.WithError(err).WithField("reservation_id", r.ID).Warn("reminder de-duplication unavailable")
			} else if !first {
				continue
			}
		}
		ev := queue.NewReservationEvent(queue.EventTripReminder, r, s.now())
		if dep, err := s.departures.GetByID(ctx, r.DepartureID); err == nil {
			ev.DepartsAt = dep.DepartsAt(r.TravelDate, s.loc).Format(time.RFC3339)
		} else {
			s.log.WithError(err).WithField("departure_id", r.DepartureID).Warn("reminder without departure time")
		}
		s.notifier.Notify(ev)
		remindersSent.Inc()
		sent++
	}
	if sent > 0 {
		s.log.WithField("count", sent).Info("trip reminders queued")
	}
	return sent, nil
}

// Run sends due reminders immediately and then every interval.
func (s *ReminderService) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("starting trip reminder job")
	return runEvery(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.SendDue(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("trip reminder run failed")
		}
	})
}
