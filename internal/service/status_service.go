package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-backend/internal/broker"
	"commerce-backend/internal/models"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// allowedTransitions is the order status state machine. Cancellation is
// reachable from every state except delivered; refunded is reserved for the
// refund workflow, which guards on the transaction instead.
var allowedTransitions = map[string][]string{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
	models.OrderStatusRefunded:   {},
}

// StatusService handles order status transitions and their side effects
type StatusService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewStatusService creates a new status service
func NewStatusService(store *store.Store, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *StatusService {
	return &StatusService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves an order to the target status, appends the audit entry
// and, on cancellation, restores the stock decremented at checkout. All
// writes happen in one transaction.
func (ss *StatusService) UpdateStatus(ctx context.Context, orderID int64, target, notes string) error {
	ctx, span := util.StartSpan(ctx, "StatusService.UpdateStatus")
	defer span.End()

	if _, known := allowedTransitions[target]; !known {
		return fmt.Errorf("%w: unknown status %q", ErrBadRequest, target)
	}

	var (
		fromStatus   string
		restockedIDs []int64
	)

	err := ss.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := ss.store.GetOrderForUpdate(ctx, tx, orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return err
		}
		fromStatus = order.Status

		if !CanTransition(order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, target)
		}

		if err := ss.store.UpdateOrderStatus(ctx, tx, orderID, target); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if notes == "" {
			notes = fmt.Sprintf("Status changed from %s to %s", order.Status, target)
		}
		if err := ss.store.InsertStatusHistory(ctx, tx, orderID, target, notes); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		if target == models.OrderStatusCancelled {
			items, err := ss.store.GetOrderItems(ctx, tx, orderID)
			if err != nil {
				return fmt.Errorf("failed to get order items: %w", err)
			}
			for _, item := range items {
				if err := ss.store.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("failed to restore stock: %w", err)
				}
				restockedIDs = append(restockedIDs, item.ProductID)
			}
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			util.StatusTransitionsRejected.Inc()
		}
		return err
	}

	util.StatusTransitionsTotal.WithLabelValues(fromStatus, target).Inc()
	ss.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", fromStatus),
		zap.String("to", target))

	if len(restockedIDs) > 0 && ss.redis != nil {
		if err := ss.redis.InvalidateProducts(ctx, restockedIDs...); err != nil {
			ss.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
	}

	if ss.eventPublisher != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:             orderID,
			FromStatus:          fromStatus,
			ToStatus:            target,
			RestockedProductIDs: restockedIDs,
		}
		if err := ss.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
			ss.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return nil
}
