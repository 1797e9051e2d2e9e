package service

import (
	"time"

	"github.com/gareci/bus-reservation/internal/model"
)

// Money is kept in integer cents.  Every division rounds half away from
// zero, so 0.5 cent goes up for charges and down for refunds alike.

// roundDiv returns n/d rounded half away from zero.  d must be positive.
func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}

// Price is base price × seats × category multiplier.  multiplierPct is
// the multiplier in percent; 0 is treated as 100.
func Price(baseCents int64, seats int, multiplierPct int) int64 {
	if multiplierPct <= 0 {
		multiplierPct = 100
	}
	return roundDiv(baseCents*int64(seats)*int64(multiplierPct), 100)
}

// Penalty is the cancellation fee for a reservation worth totalCents
// departing at departsAt, cancelled at now.  Cancelling at least
// FreeCancellationHours before departure is free.
func Penalty(totalCents int64, departsAt, now time.Time, p model.Policy) int64 {
	hoursBefore := departsAt.Sub(now).Hours()
	if hoursBefore >= float64(p.FreeCancellationHours) {
		return 0
	}
	return roundDiv(totalCents*int64(p.CancellationPenaltyPct), 100)
}
