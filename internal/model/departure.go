package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Departure is one recurring daily run of a trip.  It is not tied to a
// calendar date; reservations pick the date.  Capacity and the price
// multiplier are denormalised from the assigned bus and its category so
// the admission path needs a single lookup.
//
// Fields:
//
//	ID            – primary key identifier.
//	TripID        – trip (route) this departure belongs to.
//	BusID         – vehicle assigned to the departure.
//	DepartureTime – time of day the bus leaves.
//	ArrivalTime   – time of day the bus arrives.
//	PriceCents    – base price per seat in cents.
//	Active        – whether the departure can still be booked.
//	Capacity      – total seats on the bus (buses.capacity).
//	MultiplierPct – category price multiplier in percent, 100 = 1.0.
type Departure struct {
	ID            uint64    `db:"id"`             // departures.id
	TripID        uint64    `db:"trip_id"`        // departures.trip_id
	BusID         uint64    `db:"bus_id"`         // departures.bus_id
	DepartureTime TimeOfDay `db:"departure_time"` // departures.departure_time
	ArrivalTime   TimeOfDay `db:"arrival_time"`   // departures.arrival_time
	PriceCents    int64     `db:"price_cents"`    // departures.price_cents
	Active        bool      `db:"active"`         // departures.active
	Capacity      int       `db:"capacity"`       // buses.capacity
	MultiplierPct int       `db:"multiplier_pct"` // categories.price_multiplier_pct
}

// DepartsAt combines a travel date with the departure time of day in loc.
func (d Departure) DepartsAt(travelDate time.Time, loc *time.Location) time.Time {
	return d.DepartureTime.On(travelDate, loc)
}

// TimeOfDay is a wall-clock time without a date.  It maps to a MySQL
// TIME column, which the driver returns as text even with parseTime.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

const timeOfDayLayout = "15:04:05"

// ParseTimeOfDay accepts "15:04:05" or "15:04".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		t, err = time.Parse("15:04", s)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
		}
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// On returns the instant at this time of day on the calendar date of d,
// interpreted in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, t.Hour, t.Minute, t.Second, 0, loc)
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute(), Second: v.Second()}
		return nil
	case nil:
		*t = TimeOfDay{}
		return nil
	}
	return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) parse(s string) error {
	// MySQL may append fractional seconds.
	if len(s) > len(timeOfDayLayout) {
		s = s[:len(timeOfDayLayout)]
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}
