package store

import (
	"context"
	"database/sql"
	"errors"

	"commerce-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOrder inserts the order header inside the caller's transaction
func (s *Store) InsertOrder(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, order_number, total_amount, status,
			shipping_name, shipping_address, shipping_phone, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q, order, query,
		order.UserID, order.OrderNumber, order.TotalAmount, order.Status,
		order.ShippingName, order.ShippingAddress, order.ShippingPhone, order.PaymentMethod)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate locks the order row for the duration of the transaction
func (s *Store) GetOrderForUpdate(ctx context.Context, q sqlx.ExtContext, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetUserOrderForUpdate locks the order row, scoped to its owner
func (s *Store) GetUserOrderForUpdate(ctx context.Context, q sqlx.ExtContext, userID, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE", id, userID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetAllOrders retrieves every order, newest first
func (s *Store) GetAllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// UpdateOrderStatus updates order status inside the caller's transaction
func (s *Store) UpdateOrderStatus(ctx context.Context, q sqlx.ExtContext, orderID int64, status string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// InsertOrderItem inserts an order line snapshot
func (s *Store) InsertOrderItem(ctx context.Context, q sqlx.ExtContext, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return sqlx.GetContext(ctx, q, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetOrderItems retrieves all items for an order inside the caller's transaction
func (s *Store) GetOrderItems(ctx context.Context, q sqlx.ExtContext, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// InsertStatusHistory appends an entry to the order's audit trail.
// It must be written in the same transaction as the orders.status update
// so the two can never diverge.
func (s *Store) InsertStatusHistory(ctx context.Context, q sqlx.ExtContext, orderID int64, status, notes string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, notes) VALUES ($1, $2, $3)",
		orderID, status, notes)
	return err
}

// GetStatusHistory retrieves the order's audit trail, oldest first
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistory, error) {
	var history []models.StatusHistory
	err := s.db.SelectContext(ctx, &history,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return history, err
}

// GetLatestStatus retrieves the most recent history entry for an order
func (s *Store) GetLatestStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		"SELECT status FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1",
		orderID)
	return status, err
}

// InsertTransaction inserts a payment record inside the caller's transaction.
// The UNIQUE constraint on order_id enforces at most one payment per order.
func (s *Store) InsertTransaction(ctx context.Context, q sqlx.ExtContext, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (order_id, tx_id, amount, payment_method, status, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q, t, query,
		t.OrderID, t.TxID, t.Amount, t.PaymentMethod, t.Status, t.Details)
}

// GetTransactionByOrderID retrieves the payment for an order, nil if none exists
func (s *Store) GetTransactionByOrderID(ctx context.Context, q sqlx.ExtContext, orderID int64) (*models.Transaction, error) {
	var t models.Transaction
	err := sqlx.GetContext(ctx, q, &t,
		"SELECT * FROM transactions WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransactionForUpdate locks the payment row by its external tx id
func (s *Store) GetTransactionForUpdate(ctx context.Context, q sqlx.ExtContext, txID string) (*models.Transaction, error) {
	var t models.Transaction
	err := sqlx.GetContext(ctx, q, &t,
		"SELECT * FROM transactions WHERE tx_id = $1 FOR UPDATE", txID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransactionStatus updates a payment's status inside the caller's transaction
func (s *Store) UpdateTransactionStatus(ctx context.Context, q sqlx.ExtContext, id int64, status string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	return err
}

// GetTransaction retrieves the payment for an order on the read path, nil if none
func (s *Store) GetTransaction(ctx context.Context, orderID int64) (*models.Transaction, error) {
	return s.GetTransactionByOrderID(ctx, s.db, orderID)
}
