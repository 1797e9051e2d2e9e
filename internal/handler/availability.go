package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// SeatCounter is the availability read model.
type SeatCounter interface {
	RemainingSeats(ctx context.Context, departureID uint64, travelDate time.Time) (int, error)
}

type AvailabilityHandler struct {
	Seats SeatCounter
	Log   *logrus.Logger
}

func NewAvailabilityHandler(seats SeatCounter, log *logrus.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{Seats: seats, Log: log}
}

// Get handles GET /v1/departures/:id/availability?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	date, err := queryDate(c)
	if err != nil {
		return err
	}
	left, err := h.Seats.RemainingSeats(c.Request().Context(), id, date)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"departure_id":    id,
		"travel_date":     date.Format(dateLayout),
		"remaining_seats": left,
	})
}
