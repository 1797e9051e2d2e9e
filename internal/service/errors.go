package service

import (
	"errors"
	"fmt"

	"github.com/gareci/bus-reservation/internal/model"
)

// Code classifies a reservation error.  Handlers map codes to HTTP
// statuses; the message is meant for the end user.
type Code string

const (
	CodeDepartureNotFound     Code = "DEPARTURE_NOT_FOUND"
	CodeDepartureInactive     Code = "DEPARTURE_INACTIVE"
	CodePastDeparture         Code = "PAST_DEPARTURE"
	CodeBookingWindowNotOpen  Code = "BOOKING_WINDOW_NOT_OPEN"
	CodeBookingWindowClosed   Code = "BOOKING_WINDOW_CLOSED"
	CodeSeatCountInvalid      Code = "SEAT_COUNT_INVALID"
	CodeCustomerQuotaExceeded Code = "CUSTOMER_QUOTA_EXCEEDED"
	CodeInsufficientCapacity  Code = "INSUFFICIENT_CAPACITY"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeReservationNotFound   Code = "RESERVATION_NOT_FOUND"
	CodeStaffRequired         Code = "STAFF_REQUIRED"
	CodeForbidden             Code = "FORBIDDEN"
	CodePaymentNotAllowed     Code = "PAYMENT_NOT_ALLOWED"
	CodeInvalidPolicy         Code = "INVALID_POLICY"
	CodeBusy                  Code = "BUSY"
	CodeCapacityInvariant     Code = "CAPACITY_INVARIANT"
	CodeReasonTooLong         Code = "REASON_TOO_LONG"
	CodeReservationExpired    Code = "RESERVATION_EXPIRED"
)

// Error is a classified reservation failure.  Two errors match under
// errors.Is when their codes are equal, so callers compare against the
// sentinels below while the returned value carries the detailed message.
type Error struct {
	Code    Code
	Message string
	// From and To are set for CodeInvalidTransition.
	From model.ReservationStatus
	To   model.ReservationStatus
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrDepartureNotFound     = &Error{Code: CodeDepartureNotFound, Message: "departure not found"}
	ErrDepartureInactive     = &Error{Code: CodeDepartureInactive, Message: "this departure is no longer available"}
	ErrPastDeparture         = &Error{Code: CodePastDeparture, Message: "cannot book a departure in the past"}
	ErrBookingWindowNotOpen  = &Error{Code: CodeBookingWindowNotOpen, Message: "bookings are not open yet"}
	ErrBookingWindowClosed   = &Error{Code: CodeBookingWindowClosed, Message: "bookings are closed"}
	ErrSeatCountInvalid      = &Error{Code: CodeSeatCountInvalid, Message: "invalid seat count"}
	ErrCustomerQuotaExceeded = &Error{Code: CodeCustomerQuotaExceeded, Message: "too many active reservations"}
	ErrInsufficientCapacity  = &Error{Code: CodeInsufficientCapacity, Message: "not enough seats available"}
	ErrInvalidTransition     = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrReservationNotFound   = &Error{Code: CodeReservationNotFound, Message: "reservation not found"}
	ErrStaffRequired         = &Error{Code: CodeStaffRequired, Message: "staff privileges required"}
	ErrForbidden             = &Error{Code: CodeForbidden, Message: "reservation belongs to another customer"}
	ErrPaymentNotAllowed     = &Error{Code: CodePaymentNotAllowed, Message: "payment not allowed"}
	ErrInvalidPolicy         = &Error{Code: CodeInvalidPolicy, Message: "invalid policy"}
	ErrBusy                  = &Error{Code: CodeBusy, Message: "the system is busy, please retry"}
	ErrCapacityInvariant     = &Error{Code: CodeCapacityInvariant, Message: "reservation ledger exceeds capacity"}
	ErrReasonTooLong         = &Error{Code: CodeReasonTooLong, Message: "rejection reason too long"}
	ErrReservationExpired    = &Error{Code: CodeReservationExpired, Message: "the payment deadline has passed"}
)

func invalidTransition(from, to model.ReservationStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move reservation from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

// CodeOf returns the code of a classified error, or "" for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
