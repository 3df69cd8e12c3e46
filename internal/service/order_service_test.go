package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"commerce-backend/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productColumns = []string{"id", "name", "category", "price", "stock", "features", "created_at", "updated_at"}

func newOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewStoreWithDB(sqlx.NewDb(db, "postgres"))
	return NewOrderService(st, nil, nil, 3, time.Hour), mock
}

func productRow(id int64, price int64, stock int) *sqlmock.Rows {
	return sqlmock.NewRows(productColumns).
		AddRow(id, "Widget", "gadgets", price, stock, "{}", time.Now(), time.Now())
}

func checkoutRequest(items ...CheckoutItem) *CheckoutRequest {
	return &CheckoutRequest{
		Items:           items,
		ShippingName:    "Jane Doe",
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
	}
}

// expectCheckoutWrites sets up the tail of a successful checkout transaction
// after the order header insert: item snapshot, stock decrement, payment,
// history, cart clear.
func expectCheckoutWrites(mock sqlmock.Sqlmock, orderID, productID int64, qty int, price, total int64, userID int64) {
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(orderID, productID, qty, price).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec("UPDATE products SET stock = stock - \\$1").
		WithArgs(qty, productID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(200), time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(orderID, "pending", "Order placed").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM cart_items").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCheckoutPlacesOrderAndDecrementsStock(t *testing.T) {
	svc, mock := newOrderService(t)

	// product stock 5, qty 2 at 10.00 -> total 20.00, stock left 3
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, 1000, 5))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(10), time.Now(), time.Now()))
	expectCheckoutWrites(mock, 10, 1, 2, 1000, 2000, 42)
	mock.ExpectCommit()

	resp, err := svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 2},
	))
	require.NoError(t, err)

	assert.Equal(t, int64(10), resp.OrderID)
	assert.Equal(t, int64(2000), resp.TotalAmount)
	assert.Equal(t, "pending", resp.Status)
	assert.True(t, strings.HasPrefix(resp.OrderNumber, "ORD-"))
	assert.True(t, strings.HasPrefix(resp.TxID, "TXN-"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutMissingProductRollsBack(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WithArgs(int64(1), int64(999)).
		WillReturnRows(productRow(1, 1000, 5))
	mock.ExpectRollback()

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 1},
		CheckoutItem{ProductID: 999, Quantity: 1},
	))
	assert.ErrorIs(t, err, ErrProductMissing)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, 1000, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(10), time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec("UPDATE products SET stock = stock - \\$1").
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 3},
	))
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRejectsStalePriceQuote(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, 1000, 5))
	mock.ExpectRollback()

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 1, UnitPrice: 900},
	))
	assert.ErrorIs(t, err, ErrPriceMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRetriesOnOrderNumberCollision(t *testing.T) {
	svc, mock := newOrderService(t)

	collision := &pq.Error{Code: "23505", Constraint: "orders_order_number_key"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WillReturnRows(productRow(1, 1000, 5))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnError(collision)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM products WHERE id IN").
		WillReturnRows(productRow(1, 1000, 5))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(11), time.Now(), time.Now()))
	expectCheckoutWrites(mock, 11, 1, 1, 1000, 1000, 42)
	mock.ExpectCommit()

	resp, err := svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(11), resp.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	svc, mock := newOrderService(t)

	_, err := svc.Checkout(context.Background(), 0, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 1},
	))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRejectsEmptyAndInvalidLines(t *testing.T) {
	svc, mock := newOrderService(t)

	_, err := svc.Checkout(context.Background(), 42, checkoutRequest())
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Checkout(context.Background(), 42, checkoutRequest(
		CheckoutItem{ProductID: 1, Quantity: 0},
	))
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var orderColumns = []string{"id", "user_id", "order_number", "total_amount", "status",
	"shipping_name", "shipping_address", "shipping_phone", "payment_method", "created_at", "updated_at"}

func orderRow(id, userID int64, status string, total int64) *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns).
		AddRow(id, userID, "ORD-20250101000000-ABCD1234", total, status,
			"Jane Doe", "1 Main St", "", "card", time.Now(), time.Now())
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(orderRow(10, 7, "pending", 2000))

	_, err := svc.GetOrder(context.Background(), 42, false, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderNotFound(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectQuery("SELECT \\* FROM orders WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.GetOrder(context.Background(), 42, false, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersDerivesStatusFromHistory(t *testing.T) {
	svc, mock := newOrderService(t)

	mock.ExpectQuery("SELECT \\* FROM orders WHERE user_id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(orderRow(10, 42, "processing", 2000))
	mock.ExpectQuery("SELECT \\* FROM order_items WHERE order_id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "unit_price"}).
			AddRow(int64(100), int64(10), int64(1), 2, int64(1000)))
	mock.ExpectQuery("SELECT status FROM order_status_history").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))

	summaries, err := svc.ListOrders(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	// stored status and derived status must never diverge
	assert.Equal(t, summaries[0].Order.Status, summaries[0].DerivedStatus)
	assert.Len(t, summaries[0].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
