package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/service"
)

// Admission creates reservations.
type Admission interface {
	Create(ctx context.Context, in service.CreateInput) (*model.Reservation, error)
}

// Queries serves reservation views.
type Queries interface {
	ForCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error)
	Detail(ctx context.Context, id uint64, actor model.Identity) (*service.ReservationDetail, error)
	ByReference(ctx context.Context, reference string, staff model.Identity) (*service.ReservationDetail, error)
	ForDeparture(ctx context.Context, departureID uint64, travelDate time.Time, staff model.Identity) ([]model.Reservation, error)
}

// Lifecycle applies status transitions.
type Lifecycle interface {
	Validate(ctx context.Context, id uint64, staff model.Identity) (*model.Reservation, error)
	Reject(ctx context.Context, id uint64, staff model.Identity, reason string) (*model.Reservation, error)
	Confirm(ctx context.Context, id uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, id uint64, actor model.Identity) (*model.Reservation, error)
	PenaltyQuote(ctx context.Context, id uint64, actor model.Identity) (int64, error)
}

// Payments simulates payments.
type Payments interface {
	Pay(ctx context.Context, id uint64, customer model.Identity, succeed bool) (*service.PaymentResult, error)
}

// CustomerHandler serves the customer side of reservations.  All routes
// sit behind JWTAuth.
type CustomerHandler struct {
	Admission Admission
	Queries   Queries
	Lifecycle Lifecycle
	Payments  Payments
	Log       *logrus.Logger
}

func NewCustomerHandler(a Admission, q Queries, l Lifecycle, p Payments, log *logrus.Logger) *CustomerHandler {
	if a == nil || q == nil || l == nil || p == nil {
		panic("nil service passed to NewCustomerHandler")
	}
	return &CustomerHandler{Admission: a, Queries: q, Lifecycle: l, Payments: p, Log: log}
}

type createReq struct {
	DepartureID uint64 `json:"departure_id"`
	TravelDate  string `json:"travel_date"`
	SeatCount   int    `json:"seat_count"`
}

// Create handles POST /v1/reservations.
func (h *CustomerHandler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var req createReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.DepartureID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "departure_id is required"})
	}
	date, err := time.Parse(dateLayout, req.TravelDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "travel_date must be YYYY-MM-DD"})
	}

	res, err := h.Admission.Create(c.Request().Context(), service.CreateInput{
		DepartureID: req.DepartureID,
		TravelDate:  date,
		CustomerID:  who.ID,
		SeatCount:   req.SeatCount,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toView(res))
}

// ListMine handles GET /v1/my-reservations.
func (h *CustomerHandler) ListMine(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	list, err := h.Queries.ForCustomer(c.Request().Context(), who.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": toViews(list)})
}

// Get handles GET /v1/reservations/:id.  The body includes the payment
// attempts.
func (h *CustomerHandler) Get(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.Queries.Detail(c.Request().Context(), id, who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toDetailView(d))
}

// Cancel handles DELETE /v1/reservations/:id.
func (h *CustomerHandler) Cancel(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := h.Lifecycle.Cancel(c.Request().Context(), id, who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toView(r))
}

// Penalty handles GET /v1/reservations/:id/penalty.
func (h *CustomerHandler) Penalty(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cents, err := h.Lifecycle.PenaltyQuote(c.Request().Context(), id, who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation_id": id, "penalty_cents": cents})
}

type payReq struct {
	// Succeed selects the simulated gateway outcome; omitted means success.
	Succeed *bool `json:"succeed"`
}

// Pay handles POST /v1/reservations/:id/pay.
func (h *CustomerHandler) Pay(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req payReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
	}
	succeed := req.Succeed == nil || *req.Succeed

	out, err := h.Payments.Pay(c.Request().Context(), id, who, succeed)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	status := http.StatusOK
	if out.Payment.Status != model.PaymentSucceeded {
		status = http.StatusPaymentRequired
	}
	return c.JSON(status, echo.Map{
		"payment": echo.Map{
			"reference":    out.Payment.Reference,
			"amount_cents": out.Payment.AmountCents,
			"status":       out.Payment.Status,
		},
		"reservation": toView(&out.Reservation),
	})
}
