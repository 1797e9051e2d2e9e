package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/model"
)

func TestPolicyRepo_GetActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	mock.ExpectQuery(`FROM reservation_policies WHERE active = 1 ORDER BY id ASC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "max_advance_days", "min_advance_hours", "max_seats_per_reservation",
			"max_active_per_customer", "free_cancellation_hours", "cancellation_penalty_pct",
			"payment_deadline_minutes", "active", "created_at",
		}).AddRow(2, 30, 3, 6, 4, 48, 25, 15, true, time.Now()))
	mock.ExpectQuery(`FROM reservation_policies`).WillReturnError(sql.ErrNoRows)

	p, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.ID)
	assert.Equal(t, 30, p.MaxAdvanceDays)
	assert.Equal(t, 15*time.Minute, p.PaymentDeadline())

	_, err = repo.GetActive(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_Replace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)
	p := model.DefaultPolicy()
	p.Active = false

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE reservation_policies SET active = 0 WHERE active = 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reservation_policies`).
		WithArgs(90, 2, 10, 5, 24, 20, 30, true).
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectCommit()

	err := database.NewTxManager(db).WithinTransaction(context.Background(), func(ctx context.Context) error {
		return repo.Replace(ctx, &p)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), p.ID)
	assert.True(t, p.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepo(db)

	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs(uint64(42), "PAYREF00000000000001", int64(3000), "PENDING").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(`INSERT INTO payments`).
		WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectExec(`UPDATE payments SET status = \? WHERE id = \?`).
		WithArgs("SUCCEEDED", uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &model.Payment{ReservationID: 42, Reference: "PAYREF00000000000001", AmountCents: 3000, Status: model.PaymentPending}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.Equal(t, uint64(5), p.ID)

	assert.ErrorIs(t, repo.Create(context.Background(), &model.Payment{ReservationID: 42}), ErrDuplicateReference)
	require.NoError(t, repo.UpdateStatus(context.Background(), 5, model.PaymentSucceeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListByReservation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepo(db)
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "reservation_id", "reference", "amount_cents", "status", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM payments WHERE reservation_id = \? ORDER BY id`).
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(5, 42, "PAYREF00000000000001", 3000, "FAILED", now, now).
			AddRow(6, 42, "PAYREF00000000000002", 3000, "SUCCEEDED", now, now))
	mock.ExpectQuery(`FROM payments WHERE reservation_id = \?`).
		WithArgs(uint64(43)).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`FROM payments WHERE reservation_id = \?`).
		WithArgs(uint64(44)).
		WillReturnError(sql.ErrConnDone)

	list, err := repo.ListByReservation(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.PaymentFailed, list[0].Status)
	assert.Equal(t, "PAYREF00000000000002", list[1].Reference)
	assert.Equal(t, int64(3000), list[1].AmountCents)

	none, err := repo.ListByReservation(context.Background(), 43)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = repo.ListByReservation(context.Background(), 44)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	t.Run("Create normalises email", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users`).
			WithArgs("awa@example.ci", sqlmock.AnyArg(), model.RoleCustomer).
			WillReturnResult(sqlmock.NewResult(11, 1))

		id, err := repo.Create(context.Background(), "  Awa@Example.CI ", "s3cret-pass", model.RoleCustomer, 4)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), id)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&mysql.MySQLError{Number: 1062})

		_, err := repo.Create(context.Background(), "awa@example.ci", "s3cret-pass", model.RoleCustomer, 4)
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("ListStaffEmails", func(t *testing.T) {
		mock.ExpectQuery(`SELECT email FROM users WHERE role = \? AND is_active = 1`).
			WithArgs(model.RoleStaff).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("ops@gareci.ci").AddRow("desk@gareci.ci"))

		emails, err := repo.ListStaffEmails(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ops@gareci.ci", "desk@gareci.ci"}, emails)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
