package worker

import (
	"context"
	"log"

	"commerce-backend/internal/broker"
	"commerce-backend/internal/models"
	"commerce-backend/internal/redisclient"
)

// CacheWorker consumes order events and drops cached catalog rows whose
// stock changed, so replicas reading the product cache converge after a
// checkout, cancellation or refund commits elsewhere.
type CacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	redis        *redisclient.Client
}

// NewCacheWorker creates a new cache worker
func NewCacheWorker(consumer *broker.Consumer, redis *redisclient.Client) *CacheWorker {
	w := &CacheWorker{
		consumer: consumer,
		redis:    redis,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	eventHandler.OnRefundIssued(w.handleRefundIssued)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *CacheWorker) Start(ctx context.Context) error {
	log.Println("Starting cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CacheWorker) Stop() error {
	log.Println("Stopping cache worker...")
	return w.consumer.Close()
}

func (w *CacheWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ids := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		ids = append(ids, item.ProductID)
	}
	return w.invalidate(ctx, ids)
}

func (w *CacheWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return w.invalidate(ctx, event.RestockedProductIDs)
}

func (w *CacheWorker) handleRefundIssued(ctx context.Context, event *models.RefundIssuedEvent) error {
	return w.invalidate(ctx, event.ProductIDs)
}

func (w *CacheWorker) invalidate(ctx context.Context, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if err := w.redis.InvalidateProducts(ctx, productIDs...); err != nil {
		log.Printf("Failed to invalidate product cache: %v", err)
		return err
	}
	return nil
}
