package service

import (
	"context"
	"database/sql"
	"testing"

	"commerce-backend/internal/models"
	"commerce-backend/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusService(t *testing.T) (*StatusService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewStoreWithDB(sqlx.NewDb(db, "postgres"))
	return NewStatusService(st, nil, nil), mock
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.OrderStatusPending, models.OrderStatusProcessing, true},
		{models.OrderStatusProcessing, models.OrderStatusShipped, true},
		{models.OrderStatusShipped, models.OrderStatusDelivered, true},
		{models.OrderStatusPending, models.OrderStatusCancelled, true},
		{models.OrderStatusProcessing, models.OrderStatusCancelled, true},
		{models.OrderStatusShipped, models.OrderStatusCancelled, true},
		{models.OrderStatusDelivered, models.OrderStatusCancelled, false},
		{models.OrderStatusDelivered, models.OrderStatusPending, false},
		{models.OrderStatusPending, models.OrderStatusDelivered, false},
		{models.OrderStatusCancelled, models.OrderStatusProcessing, false},
		{models.OrderStatusRefunded, models.OrderStatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestUpdateStatusCancellationRestoresStock(t *testing.T) {
	svc, mock := newStatusService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(orderRow(10, 42, "pending", 2000))
	mock.ExpectExec("UPDATE orders SET status = \\$1").
		WithArgs("cancelled", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(int64(10), "cancelled", "Customer request").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM order_items WHERE order_id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "unit_price"}).
			AddRow(int64(100), int64(10), int64(1), 2, int64(1000)).
			AddRow(int64(101), int64(10), int64(2), 1, int64(500)))
	// inverse of the checkout decrement, per item quantity
	mock.ExpectExec("UPDATE products SET stock = stock \\+ \\$1").
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET stock = stock \\+ \\$1").
		WithArgs(1, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.UpdateStatus(context.Background(), 10, models.OrderStatusCancelled, "Customer request")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGeneratesDefaultNote(t *testing.T) {
	svc, mock := newStatusService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(orderRow(10, 42, "processing", 2000))
	mock.ExpectExec("UPDATE orders SET status = \\$1").
		WithArgs("shipped", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(int64(10), "shipped", "Status changed from processing to shipped").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.UpdateStatus(context.Background(), 10, models.OrderStatusShipped, "")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	svc, mock := newStatusService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(orderRow(10, 42, "delivered", 2000))
	mock.ExpectRollback()

	err := svc.UpdateStatus(context.Background(), 10, models.OrderStatusPending, "")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, mock := newStatusService(t)

	err := svc.UpdateStatus(context.Background(), 10, "misplaced", "")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusOrderNotFound(t *testing.T) {
	svc, mock := newStatusService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := svc.UpdateStatus(context.Background(), 99, models.OrderStatusProcessing, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
