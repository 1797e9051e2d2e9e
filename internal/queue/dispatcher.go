package queue

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_events_published_total",
		Help: "Reservation events handed to the broker.",
	})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_events_dropped_total",
		Help: "Reservation events lost, by reason.",
	}, []string{"reason"})
)

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev ReservationEvent) error
}

const publishTimeout = 5 * time.Second

// Dispatcher decouples request handling from the broker.  Notify only
// enqueues; Run drains the buffer and publishes.  A full buffer or a
// failed publish drops the event with a warning and never fails the
// caller.
type Dispatcher struct {
	pub    Publisher
	log    *logrus.Logger
	events chan ReservationEvent
}

func NewDispatcher(pub Publisher, log *logrus.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{pub: pub, log: log, events: make(chan ReservationEvent, buffer)}
}

// Notify enqueues ev without blocking.
func (d *Dispatcher) Notify(ev ReservationEvent) {
	select {
	case d.events <- ev:
	default:
		eventsDropped.WithLabelValues("buffer_full").Inc()
		d.log.WithFields(logrus.Fields{"event": ev.Type, "reservation_id": ev.ReservationID}).
			Warn("notification buffer full, dropping event")
	}
}

// Run publishes queued events until ctx is done, then flushes what is
// left in the buffer with a short deadline.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.events:
			d.publish(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.events:
			d.publish(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev ReservationEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := d.pub.Publish(ctx, ev); err != nil {
		eventsDropped.WithLabelValues("publish_failed").Inc()
		d.log.WithError(err).WithFields(logrus.Fields{"event": ev.Type, "reservation_id": ev.ReservationID}).
			Warn("failed to publish reservation event")
		return
	}
	eventsPublished.Inc()
}
