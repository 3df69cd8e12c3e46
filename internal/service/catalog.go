package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-backend/internal/models"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// CatalogClient serves product reads, with Redis as a read-through cache in
// front of the database. Writes go straight to the database and drop the
// cached row.
type CatalogClient struct {
	store    *store.Store
	redis    *redisclient.Client
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *CatalogClient {
	return &CatalogClient{
		store:    store,
		redis:    redis,
		logger:   util.GetLogger(),
		cacheTTL: cacheTTL,
	}
}

// GetProduct retrieves a product, fast path via Redis
func (cc *CatalogClient) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogClient.GetProduct")
	defer span.End()

	if cc.redis != nil {
		cached, err := cc.redis.GetCachedProduct(ctx, productID)
		if err != nil {
			cc.logger.Warn("Product cache read failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	product, err := cc.store.GetProductByID(ctx, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}

	if cc.redis != nil {
		if err := cc.redis.CacheProduct(ctx, product, cc.cacheTTL); err != nil {
			cc.logger.Warn("Failed to cache product",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}

	return product, nil
}

// ListProducts retrieves the full catalog
func (cc *CatalogClient) ListProducts(ctx context.Context) ([]models.Product, error) {
	return cc.store.GetProducts(ctx)
}

// CreateProduct inserts a product; the only place an absolute stock level
// is written. All later movement is relative.
func (cc *CatalogClient) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrBadRequest)
	}
	if p.Price < 0 || p.Stock < 0 {
		return fmt.Errorf("%w: price and stock must be non-negative", ErrBadRequest)
	}
	if err := cc.store.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	cc.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return nil
}

// UpdateProduct updates catalog fields (not stock) and drops the cached row
func (cc *CatalogClient) UpdateProduct(ctx context.Context, p *models.Product) error {
	if p.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrBadRequest)
	}
	err := cc.store.UpdateProduct(ctx, p)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: product %d", ErrNotFound, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	if cc.redis != nil {
		if err := cc.redis.InvalidateProducts(ctx, p.ID); err != nil {
			cc.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
	}
	return nil
}
