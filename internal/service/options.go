package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/repository"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 25 * time.Millisecond
)

type settings struct {
	now          func() time.Time
	loc          *time.Location
	maxAttempts  int
	retryBackoff time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		now:          time.Now,
		loc:          time.UTC,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the services in this package.
type Option func(*settings)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone in which departure times of day are read.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMaxAttempts bounds how many times a transaction hitting a deadlock
// or lock wait timeout is attempted.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts; attempt k waits k times it.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

// today is the current calendar date in the service location, as a UTC midnight.
func (s settings) today() time.Time {
	return civilDate(s.now().In(s.loc))
}

// civilDate drops the clock part of t, keeping its year, month and day.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(civilDate(to).Sub(civilDate(from)).Hours() / 24)
}

// withRetry runs fn until it succeeds, fails with a non-transient error
// or runs out of attempts.  Exhaustion is reported as ErrBusy.
func (s settings) withRetry(ctx context.Context, log logrus.FieldLogger, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !repository.IsTransient(err) {
			return err
		}
		transientRetries.WithLabelValues(op).Inc()
		log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt}).Warn("transient storage error")
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt)):
		}
	}
	log.WithError(err).WithField("op", op).Error("retries exhausted")
	return newError(CodeBusy, "the system is busy, please retry (%d attempts)", s.maxAttempts)
}
