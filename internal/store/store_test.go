package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// "postgres" so Rebind produces $n placeholders like production
	return NewStoreWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock = stock \\+ \\$1").
		WithArgs(3, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return s.IncrementStock(context.Background(), tx, 7, 3)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockGuardsAgainstNegative(t *testing.T) {
	s, mock := newMockStore(t)

	// guarded update matches no row when stock < quantity
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock = stock - \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND stock >= \\$1").
		WithArgs(10, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return s.DecrementStock(context.Background(), tx, 1, 10)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockSucceedsWhenStockCovers(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock = stock - \\$1").
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return s.DecrementStock(context.Background(), tx, 1, 2)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCartCreatesLazily(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO carts \\(user_id\\) VALUES \\(\\$1\\) ON CONFLICT \\(user_id\\) DO NOTHING").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	var cartID int64
	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		cartID, err = s.EnsureCart(context.Background(), tx, 42)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), cartID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCartItemQuantityMissingItem(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cart_items SET quantity = \\$1").
		WithArgs(4, int64(5), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return s.SetCartItemQuantity(context.Background(), tx, 5, 99, 4)
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransactionByOrderIDNilWhenAbsent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM transactions WHERE order_id = \\$1").
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	transaction, err := s.GetTransaction(context.Background(), 9)
	assert.NoError(t, err)
	assert.Nil(t, transaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}
