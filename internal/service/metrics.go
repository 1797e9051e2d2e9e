package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_admissions_total",
		Help: "Reservations accepted by admission control",
	})
	admissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_admission_rejections_total",
		Help: "Reservation requests refused, by error code",
	}, []string{"code"})
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transitions_total",
		Help: "Lifecycle transitions applied, by target status",
	}, []string{"to"})
	transientRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_transient_retries_total",
		Help: "Transactions retried after a deadlock or lock wait timeout",
	}, []string{"op"})
	sweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_sweep_expired_total",
		Help: "Reservations expired by the background sweep",
	})
	remindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_reminders_sent_total",
		Help: "Trip reminders queued for confirmed reservations",
	})
)
