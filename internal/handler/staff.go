package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/model"
)

// Sweeper runs the expiry sweep on demand.
type Sweeper interface {
	SweepExpirations(ctx context.Context) (int, error)
}

// Policies reads and replaces the reservation policy.
type Policies interface {
	Active(ctx context.Context) model.Policy
	Update(ctx context.Context, p model.Policy) (model.Policy, error)
}

// StaffHandler serves the back-office routes.  They sit behind JWTAuth
// and RequireRole(STAFF).
type StaffHandler struct {
	Lifecycle Lifecycle
	Queries   Queries
	Sweeper   Sweeper
	Policies  Policies
	Log       *logrus.Logger
}

func NewStaffHandler(l Lifecycle, q Queries, s Sweeper, p Policies, log *logrus.Logger) *StaffHandler {
	return &StaffHandler{Lifecycle: l, Queries: q, Sweeper: s, Policies: p, Log: log}
}

// transition runs one lifecycle call for the :id in the path.
func (h *StaffHandler) transition(c echo.Context, fn func(ctx context.Context, id uint64, staff model.Identity) (*model.Reservation, error)) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := fn(c.Request().Context(), id, who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toView(r))
}

// Validate handles POST /v1/staff/reservations/:id/validate.
func (h *StaffHandler) Validate(c echo.Context) error {
	return h.transition(c, h.Lifecycle.Validate)
}

// Reject handles POST /v1/staff/reservations/:id/reject with an optional
// {"reason": "..."} body.
func (h *StaffHandler) Reject(c echo.Context) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
	}
	return h.transition(c, func(ctx context.Context, id uint64, staff model.Identity) (*model.Reservation, error) {
		return h.Lifecycle.Reject(ctx, id, staff, body.Reason)
	})
}

// Confirm handles POST /v1/staff/reservations/:id/confirm.
func (h *StaffHandler) Confirm(c echo.Context) error {
	return h.transition(c, func(ctx context.Context, id uint64, _ model.Identity) (*model.Reservation, error) {
		return h.Lifecycle.Confirm(ctx, id)
	})
}

// Cancel handles POST /v1/staff/reservations/:id/cancel.
func (h *StaffHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Lifecycle.Cancel)
}

// ListForDeparture handles GET /v1/staff/departures/:id/reservations?date=.
func (h *StaffHandler) ListForDeparture(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	date, err := queryDate(c)
	if err != nil {
		return err
	}
	list, err := h.Queries.ForDeparture(c.Request().Context(), id, date, who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": toViews(list)})
}

// ByReference handles GET /v1/staff/reservations/by-reference/:ref.
func (h *StaffHandler) ByReference(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	d, err := h.Queries.ByReference(c.Request().Context(), c.Param("ref"), who)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toDetailView(d))
}

// Sweep handles POST /v1/staff/sweep.
func (h *StaffHandler) Sweep(c echo.Context) error {
	n, err := h.Sweeper.SweepExpirations(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}

// GetPolicy handles GET /v1/staff/policy.
func (h *StaffHandler) GetPolicy(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Policies.Active(c.Request().Context()))
}

// PutPolicy handles PUT /v1/staff/policy.  The body replaces the active
// policy as a whole.
func (h *StaffHandler) PutPolicy(c echo.Context) error {
	var p model.Policy
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	saved, err := h.Policies.Update(c.Request().Context(), p)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, saved)
}
