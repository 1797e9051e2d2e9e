package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultSweepBatch    = 100
	defaultSweepInterval = time.Minute
	maxSweepBatches      = 50
)

// ExpirySweeper expires unpaid reservations whose deadline has passed.
// Candidates are listed in small batches and each one is expired in its
// own short transaction, so an interrupted sweep keeps its progress and
// never holds locks across the batch.
type ExpirySweeper struct {
	reservations ReservationStore
	lifecycle    *LifecycleMutator
	log          *logrus.Logger
	batchSize    int
	interval     time.Duration
	now          func() time.Time
}

// NewExpirySweeper returns a sweeper.  Zero batchSize or interval pick
// the defaults (100 rows, one minute).
func NewExpirySweeper(reservations ReservationStore, lifecycle *LifecycleMutator, log *logrus.Logger, batchSize int, interval time.Duration, opts ...Option) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	s := newSettings(opts)
	return &ExpirySweeper{
		reservations: reservations,
		lifecycle:    lifecycle,
		log:          log,
		batchSize:    batchSize,
		interval:     interval,
		now:          s.now,
	}
}

// SweepExpirations expires every due reservation and returns how many
// moved to EXPIRED.  Failures on single rows are logged and skipped.
func (s *ExpirySweeper) SweepExpirations(ctx context.Context) (int, error) {
	expired := 0
	for batch := 0; batch < maxSweepBatches; batch++ {
		ids, err := s.reservations.ListExpired(ctx, s.now(), s.batchSize)
		if err != nil {
			return expired, err
		}
		if len(ids) == 0 {
			break
		}

		progressed := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return expired, err
			}
			ok, err := s.lifecycle.Expire(ctx, id)
			if err != nil {
				s.log.WithError(err).WithField("reservation_id", id).Error("failed to expire reservation")
				continue
			}
			if ok {
				expired++
				progressed++
				sweepExpired.Inc()
			}
		}
		// A short batch was the last one; a batch with no progress would
		// only list the same failing rows again.
		if len(ids) < s.batchSize || progressed == 0 {
			break
		}
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired unpaid reservations")
	}
	return expired, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("starting reservation expiry sweeper")
	return runEvery(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.SweepExpirations(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("expiry sweep failed")
		}
	})
}

// runEvery calls fn once, then on every tick, until ctx is cancelled.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
