package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-backend/internal/models"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// CartService manages the per-user cart. The cart row is created lazily on
// first touch and survives checkouts; only its items come and go.
type CartService struct {
	store   *store.Store
	catalog *CatalogClient
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, catalog *CatalogClient) *CartService {
	return &CartService{
		store:   store,
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// AddItem adds quantity of a product to the user's cart
func (cs *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) error {
	if userID <= 0 {
		return ErrUnauthorized
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrBadRequest)
	}

	if _, err := cs.catalog.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrProductMissing, productID)
		}
		return err
	}

	return cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cartID, err := cs.store.EnsureCart(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to ensure cart: %w", err)
		}
		return cs.store.UpsertCartItem(ctx, tx, cartID, productID, quantity)
	})
}

// SetItemQuantity overwrites the quantity of a cart item
func (cs *CartService) SetItemQuantity(ctx context.Context, userID, productID int64, quantity int) error {
	if userID <= 0 {
		return ErrUnauthorized
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrBadRequest)
	}

	err := cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cartID, err := cs.store.EnsureCart(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to ensure cart: %w", err)
		}
		return cs.store.SetCartItemQuantity(ctx, tx, cartID, productID, quantity)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: product %d not in cart", ErrNotFound, productID)
	}
	return err
}

// RemoveItem removes a product from the user's cart
func (cs *CartService) RemoveItem(ctx context.Context, userID, productID int64) error {
	if userID <= 0 {
		return ErrUnauthorized
	}

	err := cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cartID, err := cs.store.EnsureCart(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("failed to ensure cart: %w", err)
		}
		return cs.store.RemoveCartItem(ctx, tx, cartID, productID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: product %d not in cart", ErrNotFound, productID)
	}
	return err
}

// GetCart retrieves the user's cart items with current catalog name and price
func (cs *CartService) GetCart(ctx context.Context, userID int64) ([]models.CartItemDetail, error) {
	if userID <= 0 {
		return nil, ErrUnauthorized
	}

	items, err := cs.store.GetCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.CartItemDetail{}
	}
	return items, nil
}

// Clear empties the user's cart
func (cs *CartService) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrUnauthorized
	}

	return cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return cs.store.ClearCartItemsByUser(ctx, tx, userID)
	})
}
