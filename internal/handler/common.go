package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gareci/bus-reservation/internal/middleware"
	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/service"
)

const dateLayout = "2006-01-02"

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")

// pathID parses the :id path parameter as a positive integer.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// queryDate parses the date query parameter (YYYY-MM-DD).
func queryDate(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date is required (YYYY-MM-DD)")
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return d, nil
}

func caller(c echo.Context) (model.Identity, error) {
	id, ok := middleware.Identity(c)
	if !ok {
		return model.Identity{}, errUnauthorized
	}
	return id, nil
}

// reservationView is the JSON shape of a reservation.
type reservationView struct {
	ID              uint64     `json:"id"`
	Reference       string     `json:"reference"`
	CustomerID      uint64     `json:"customer_id"`
	DepartureID     uint64     `json:"departure_id"`
	TravelDate      string     `json:"travel_date"`
	SeatCount       int        `json:"seat_count"`
	TotalPriceCents int64      `json:"total_price_cents"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ValidatedBy     *uint64    `json:"validated_by,omitempty"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	PenaltyCents    *int64     `json:"cancellation_penalty_cents,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toView(r *model.Reservation) reservationView {
	return reservationView{
		ID:              r.ID,
		Reference:       r.Reference,
		CustomerID:      r.CustomerID,
		DepartureID:     r.DepartureID,
		TravelDate:      r.TravelDate.Format(dateLayout),
		SeatCount:       r.SeatCount,
		TotalPriceCents: r.TotalPriceCents,
		Status:          string(r.Status),
		ExpiresAt:       r.ExpiresAt,
		RejectionReason: r.RejectionReason,
		ValidatedBy:     r.ValidatedBy,
		ValidatedAt:     r.ValidatedAt,
		PenaltyCents:    r.CancellationPenaltyCents,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type paymentView struct {
	Reference   string    `json:"reference"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type detailView struct {
	reservationView
	Payments []paymentView `json:"payments"`
}

func toDetailView(d *service.ReservationDetail) detailView {
	out := detailView{reservationView: toView(&d.Reservation), Payments: make([]paymentView, 0, len(d.Payments))}
	for _, p := range d.Payments {
		out.Payments = append(out.Payments, paymentView{
			Reference:   p.Reference,
			AmountCents: p.AmountCents,
			Status:      string(p.Status),
			CreatedAt:   p.CreatedAt,
		})
	}
	return out
}

func toViews(list []model.Reservation) []reservationView {
	out := make([]reservationView, 0, len(list))
	for i := range list {
		out = append(out, toView(&list[i]))
	}
	return out
}
