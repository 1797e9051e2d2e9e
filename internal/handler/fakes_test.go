package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/gareci/bus-reservation/internal/middleware"
	"github.com/gareci/bus-reservation/internal/model"
	"github.com/gareci/bus-reservation/internal/service"
	"github.com/gareci/bus-reservation/internal/utils"
)

const testSecret = "test-access-secret-key-123456789"

type fakeAdmission struct {
	got service.CreateInput
	res *model.Reservation
	err error
}

func (f *fakeAdmission) Create(_ context.Context, in service.CreateInput) (*model.Reservation, error) {
	f.got = in
	return f.res, f.err
}

type fakeQueries struct {
	list     []model.Reservation
	one      *model.Reservation
	payments []model.Payment
	ref      string
	err      error
}

func (f *fakeQueries) ForCustomer(context.Context, uint64) ([]model.Reservation, error) {
	return f.list, f.err
}

func (f *fakeQueries) Detail(context.Context, uint64, model.Identity) (*service.ReservationDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ReservationDetail{Reservation: *f.one, Payments: f.payments}, nil
}

func (f *fakeQueries) ByReference(_ context.Context, reference string, staff model.Identity) (*service.ReservationDetail, error) {
	f.ref = reference
	if !staff.Staff {
		return nil, service.ErrStaffRequired
	}
	return f.Detail(context.Background(), 0, staff)
}

func (f *fakeQueries) ForDeparture(_ context.Context, _ uint64, _ time.Time, staff model.Identity) ([]model.Reservation, error) {
	if !staff.Staff {
		return nil, service.ErrStaffRequired
	}
	return f.list, f.err
}

// fakeLifecycle records the last call and answers with res or err.
type fakeLifecycle struct {
	call    string
	id      uint64
	actor   model.Identity
	reason  string
	res     *model.Reservation
	penalty int64
	err     error
}

func (f *fakeLifecycle) record(call string, id uint64, actor model.Identity) (*model.Reservation, error) {
	f.call, f.id, f.actor = call, id, actor
	return f.res, f.err
}

func (f *fakeLifecycle) Validate(_ context.Context, id uint64, staff model.Identity) (*model.Reservation, error) {
	return f.record("validate", id, staff)
}

func (f *fakeLifecycle) Reject(_ context.Context, id uint64, staff model.Identity, reason string) (*model.Reservation, error) {
	f.reason = reason
	return f.record("reject", id, staff)
}

func (f *fakeLifecycle) Confirm(_ context.Context, id uint64) (*model.Reservation, error) {
	return f.record("confirm", id, model.Identity{})
}

func (f *fakeLifecycle) Cancel(_ context.Context, id uint64, actor model.Identity) (*model.Reservation, error) {
	return f.record("cancel", id, actor)
}

func (f *fakeLifecycle) PenaltyQuote(_ context.Context, id uint64, actor model.Identity) (int64, error) {
	f.call, f.id, f.actor = "penalty", id, actor
	return f.penalty, f.err
}

type fakePayments struct {
	succeed *bool
	err     error
}

func (f *fakePayments) Pay(_ context.Context, id uint64, customer model.Identity, succeed bool) (*service.PaymentResult, error) {
	f.succeed = &succeed
	if f.err != nil {
		return nil, f.err
	}
	status, res := model.PaymentFailed, sampleReservation()
	res.ID, res.CustomerID = id, customer.ID
	if succeed {
		status, res.Status = model.PaymentSucceeded, model.StatusConfirmed
	}
	return &service.PaymentResult{
		Payment:     model.Payment{ReservationID: id, Reference: "PAY0000000000000000X", AmountCents: res.TotalPriceCents, Status: status},
		Reservation: *res,
	}, nil
}

func sampleReservation() *model.Reservation {
	return &model.Reservation{
		ID: 42, Reference: "ABCDEF123456", CustomerID: 7, DepartureID: 4,
		TravelDate: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), SeatCount: 2,
		TotalPriceCents: 3000, Status: model.StatusValidated,
		ExpiresAt: time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
	}
}

func nullLogger() *logrus.Logger {
	log, _ := logtest.NewNullLogger()
	return log
}

// do sends a request through a fresh echo instance where route is
// mounted behind JWTAuth.  uid 0 sends no token.
func do(t *testing.T, method, route, path string, h echo.HandlerFunc, uid uint64, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Add(method, route, h, middleware.JWTAuth(testSecret))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if uid != 0 {
		tok, err := utils.NewAccessToken(testSecret, uid, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}
