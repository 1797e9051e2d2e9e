package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gareci/bus-reservation/internal/model"
)

func TestSweepExpirations(t *testing.T) {
	f := newFixture(t)
	past := fixtureNow.Add(-time.Minute)

	var due []uint64
	for i := 0; i < 250; i++ {
		status := model.StatusPendingValidation
		if i%2 == 1 {
			status = model.StatusValidated
		}
		r := f.db.seed(model.Reservation{
			CustomerID: uint64(i + 1), DepartureID: depLarge, TravelDate: f.day(3),
			SeatCount: 1, Status: status, ExpiresAt: past,
		})
		due = append(due, r.ID)
	}
	fresh := f.db.seed(model.Reservation{
		CustomerID: 900, DepartureID: depLarge, TravelDate: f.day(3),
		SeatCount: 2, Status: model.StatusPendingValidation, ExpiresAt: fixtureNow.Add(10 * time.Minute),
	})
	paid := f.db.seed(model.Reservation{
		CustomerID: 901, DepartureID: depLarge, TravelDate: f.day(3),
		SeatCount: 2, Status: model.StatusConfirmed, ExpiresAt: past,
	})

	n, err := f.sweeper.SweepExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	for _, id := range due {
		assert.Equal(t, model.StatusExpired, f.db.reservation(id).Status)
	}
	assert.Equal(t, model.StatusPendingValidation, f.db.reservation(fresh.ID).Status)
	assert.Equal(t, model.StatusConfirmed, f.db.reservation(paid.ID).Status)
	assert.Equal(t, 46, f.remaining(t, depLarge, f.day(3)))

	n, err = f.sweeper.SweepExpirations(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a second sweep finds nothing")
}

func TestSweepExpirations_EachRowInItsOwnTransaction(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.db.seed(model.Reservation{
			CustomerID: 1, DepartureID: depSmall, TravelDate: f.day(1),
			SeatCount: 1, Status: model.StatusPendingValidation, ExpiresAt: fixtureNow.Add(-time.Second),
		})
	}

	n, err := f.sweeper.SweepExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	commits, _ := f.db.stats()
	assert.Equal(t, 3, commits)
}

func TestSweepExpirations_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.db.seed(model.Reservation{
		CustomerID: 1, DepartureID: depSmall, TravelDate: f.day(1),
		SeatCount: 1, Status: model.StatusPendingValidation, ExpiresAt: fixtureNow.Add(-time.Second),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.sweeper.SweepExpirations(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
