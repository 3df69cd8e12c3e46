package store

import (
	"context"
	"database/sql"

	"commerce-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// EnsureCart creates the user's cart row on first touch and returns its id.
// The cart row persists across checkouts.
func (s *Store) EnsureCart(ctx context.Context, q sqlx.ExtContext, userID int64) (int64, error) {
	_, err := q.ExecContext(ctx,
		"INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return 0, err
	}

	var cartID int64
	err = sqlx.GetContext(ctx, q, &cartID, "SELECT id FROM carts WHERE user_id = $1", userID)
	return cartID, err
}

// UpsertCartItem adds quantity to an existing (cart, product) row or inserts it
func (s *Store) UpsertCartItem(ctx context.Context, q sqlx.ExtContext, cartID, productID int64, quantity int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, quantity)
	return err
}

// SetCartItemQuantity overwrites the quantity of an existing cart item
func (s *Store) SetCartItemQuantity(ctx context.Context, q sqlx.ExtContext, cartID, productID int64, quantity int) error {
	res, err := q.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND product_id = $3",
		quantity, cartID, productID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveCartItem deletes one item from the cart
func (s *Store) RemoveCartItem(ctx context.Context, q sqlx.ExtContext, cartID, productID int64) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearCartItemsByUser empties the user's cart, leaving the cart row in place
func (s *Store) ClearCartItemsByUser(ctx context.Context, q sqlx.ExtContext, userID int64) error {
	_, err := q.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)",
		userID)
	return err
}

// GetCartItems retrieves the user's cart items joined with their catalog rows
func (s *Store) GetCartItems(ctx context.Context, userID int64) ([]models.CartItemDetail, error) {
	var items []models.CartItemDetail
	err := s.db.SelectContext(ctx, &items, `
		SELECT ci.product_id, p.name, p.price, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1
		ORDER BY ci.id`, userID)
	return items, err
}
