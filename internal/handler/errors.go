package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/service"
)

// statusFor maps reservation error codes to HTTP statuses.
var statusFor = map[service.Code]int{
	service.CodeDepartureNotFound:     http.StatusNotFound,
	service.CodeReservationNotFound:   http.StatusNotFound,
	service.CodeDepartureInactive:     http.StatusUnprocessableEntity,
	service.CodePastDeparture:         http.StatusUnprocessableEntity,
	service.CodeBookingWindowNotOpen:  http.StatusUnprocessableEntity,
	service.CodeBookingWindowClosed:   http.StatusUnprocessableEntity,
	service.CodeSeatCountInvalid:      http.StatusBadRequest,
	service.CodeInvalidPolicy:         http.StatusBadRequest,
	service.CodeCustomerQuotaExceeded: http.StatusConflict,
	service.CodeInsufficientCapacity:  http.StatusConflict,
	service.CodeInvalidTransition:     http.StatusConflict,
	service.CodePaymentNotAllowed:     http.StatusConflict,
	service.CodeStaffRequired:         http.StatusForbidden,
	service.CodeForbidden:             http.StatusForbidden,
	service.CodeBusy:                  http.StatusServiceUnavailable,
	service.CodeCapacityInvariant:     http.StatusInternalServerError,
	service.CodeReasonTooLong:         http.StatusBadRequest,
	service.CodeReservationExpired:    http.StatusConflict,
}

// respondError writes err as {"error", "code"}.  Unclassified errors are
// logged and hidden behind a generic 500.
func respondError(c echo.Context, log *logrus.Logger, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		status, ok := statusFor[se.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		body := echo.Map{"error": se.Message, "code": se.Code}
		if se.Code == service.CodeInvalidTransition {
			body["from"] = se.From
			body["to"] = se.To
		}
		if status == http.StatusServiceUnavailable {
			c.Response().Header().Set("Retry-After", "1")
		}
		return c.JSON(status, body)
	}
	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"route":  c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}
